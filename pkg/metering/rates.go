package metering

import "github.com/shopspring/decimal"

// Per-unit hourly rates. The hourly rate of a system is the linear
// combination of its aggregate quantities against these constants.
var (
	RateCPUCoreHour   = decimal.RequireFromString("0.05")   // per vCPU core
	RateMemoryGBHour  = decimal.RequireFromString("0.01")   // per GB RAM
	RateStorageGBHour = decimal.RequireFromString("0.0005") // per GB disk
)

// HourlyRate computes the metered rate for an aggregate resource triple.
func HourlyRate(cpuCores, memoryGB, storageGB int) decimal.Decimal {
	return RateCPUCoreHour.Mul(decimal.NewFromInt(int64(cpuCores))).
		Add(RateMemoryGBHour.Mul(decimal.NewFromInt(int64(memoryGB)))).
		Add(RateStorageGBHour.Mul(decimal.NewFromInt(int64(storageGB))))
}
