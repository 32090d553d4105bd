package intgen

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// SnowflakeOptions 配置选项
type SnowflakeOptions struct {
	// 机器 ID，为 nil 时从 IP 地址推导
	MachineID *int64 `cfg:"machineId"`
}

// SnowflakeGenerator 生成单调递增的 64 位 ID，用于请求日志上下文
// 1 位符号位 + 41 位毫秒时间戳 + 10 位机器 ID + 12 位序列号
type SnowflakeGenerator struct {
	state     int64 // 高位时间戳，低 12 位序列号
	machineID int64
	epoch     int64
}

const (
	sequenceBits  = 12
	machineIDBits = 10

	maxSequence  = (1 << sequenceBits) - 1
	maxMachineID = (1 << machineIDBits) - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

func NewSnowflakeGeneratorWithOptions(options *SnowflakeOptions) *SnowflakeGenerator {
	var machineID int64
	if options != nil && options.MachineID != nil {
		machineID = *options.MachineID
	} else {
		machineID = machineIDFromIP()
	}

	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	return &SnowflakeGenerator{
		state:     (time.Now().UnixMilli() - epoch) << sequenceBits,
		machineID: machineID & maxMachineID,
		epoch:     epoch,
	}
}

func machineIDFromIP() int64 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return int64(ipv4[2])<<8 | int64(ipv4[3])
			}
		}
	}
	return 0
}

func (g *SnowflakeGenerator) Generate() int64 {
	for {
		old := atomic.LoadInt64(&g.state)
		oldTimestamp := old >> sequenceBits
		now := time.Now().UnixMilli() - g.epoch

		// 时钟回拨时沿用上一个时间戳
		timestamp, sequence := now, int64(0)
		if now <= oldTimestamp {
			timestamp = oldTimestamp
			sequence = (old & maxSequence) + 1
			if sequence > maxSequence {
				timestamp, sequence = oldTimestamp+1, 0
			}
		}

		if atomic.CompareAndSwapInt64(&g.state, old, timestamp<<sequenceBits|sequence) {
			return timestamp<<timestampShift | g.machineID<<machineIDShift | sequence
		}
	}
}

// GenerateString 返回十进制字符串形式
func (g *SnowflakeGenerator) GenerateString() string {
	return strconv.FormatInt(g.Generate(), 10)
}
