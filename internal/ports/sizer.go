package ports

import "github.com/airhao3/jmm-trade/internal/domain"

// Sizer decide la inversión de un trade antes de simularlo.
type Sizer interface {
	// Size devuelve la inversión a usar partiendo de base. ok=false descarta el trade.
	Size(t domain.ObservedTrade, base float64) (investment float64, ok bool)
}
