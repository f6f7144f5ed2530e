package types

// Topic tokens shared by publishers and the log sink.
const (
	TokReading    = "reading"
	TokAlert      = "alert"
	TokTransition = "transition"
	TokFault      = "fault"
	TokSensor     = "sensor"
	TokGPIO       = "gpio"
	TokLED        = "led"
	TokValue      = "value"
	TokSupervisor = "supervisor"
	TokState      = "state"
)
