package feed

// Flag masks select which record kinds a target subscribes to.
const (
	FlagPosition = 0x01
	FlagRoute    = 0x02
	FlagRecovery = 0x04
	FlagArrival  = 0x08

	FlagAll = FlagPosition | FlagRoute | FlagRecovery | FlagArrival
)
