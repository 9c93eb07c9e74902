package model

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Amount 金额，单位：копейка（分），避免浮点误差。
type Amount int64

// MaxAmount 单个金额（单价、小计、合计）的上限：一千亿卢布。
// 在此范围内 MaxQuantity 件的小计和合计都不会溢出 int64。
const MaxAmount Amount = 100_000_000_000 * 100

// ParseAmount 解析十进制金额字符串（"1000"、"99.5"），四舍五入到分。
func ParseAmount(s string) (Amount, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	kop := math.Round(f * 100)
	if math.Abs(kop) > float64(MaxAmount) {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return Amount(kop), nil
}

// Rubles 构造整卢布金额。
func Rubles(r int64) Amount { return Amount(r * 100) }

// String 整数金额不带小数位，其余保留两位。
func (a Amount) String() string {
	sign := ""
	v := uint64(a)
	if a < 0 {
		sign = "-"
		v = -v
	}
	if v%100 == 0 {
		return fmt.Sprintf("%s%d", sign, v/100)
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// UnmarshalJSON 同时接受数字和字符串（Web App 两种都会发）。
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("amount must not be null")
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	v, err := ParseAmount(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalJSON 以卢布数字输出，供模型上下文使用。
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}
