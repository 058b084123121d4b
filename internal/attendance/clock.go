package attendance

import "time"

// Clock は現在時刻の取得を抽象化する。
// 「今日」を引数で受け取り「今」をClockから得ることで、
// 勤怠ロジックを決定的にテストできる。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock は実時刻を返すClockを返す。
func SystemClock() Clock {
	return systemClock{}
}
