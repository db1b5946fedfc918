package httpx

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 让串行请求之间至少间隔 interval（站点对突发请求敏感）。
// interval<=0 表示不限速。
type Pacer struct {
	lim *rate.Limiter
}

func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait 阻塞到下一次允许发请求；ctx 取消时返回 ctx.Err()。
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.lim == nil {
		return nil
	}
	return p.lim.Wait(ctx)
}
