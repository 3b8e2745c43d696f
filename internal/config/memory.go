package config

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// fallbackMemoryMB is assumed when available memory cannot be read.
const fallbackMemoryMB = 32768

// getAvailableMemoryMB returns available system memory in MB.
func getAvailableMemoryMB() int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return fallbackMemoryMB
	}
	return int64(vm.Available / (1024 * 1024))
}

// maxBatchSizeForMemory caps a single batch at 1/8 of available memory.
func maxBatchSizeForMemory() int64 {
	return getAvailableMemoryMB() * 1024 * 1024 / 8
}
