// Package metrics は認証処理の結果を Prometheus メトリクスとして公開します。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン・登録結果のラベル値です。
const (
	ResultSuccess     = "success"
	ResultInvalid     = "invalid"
	ResultLocked      = "locked"
	ResultRateLimited = "rate_limited"
	ResultError       = "error"
)

// Recorder は認証ハンドラーから利用するメトリクス記録のインターフェースです。
type Recorder interface {
	RecordLogin(result string)
	RecordRegister(result string)
	RecordLogout()
}

// Collector は Prometheus カウンターで Recorder を実装します。
type Collector struct {
	login    *prometheus.CounterVec
	register *prometheus.CounterVec
	logout   prometheus.Counter
}

// NewCollector は Collector を作成し、指定されたレジストリに登録します。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_total",
			Help: "ログイン試行の結果別件数",
		}, []string{"result"}),
		register: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_register_total",
			Help: "ユーザー登録の結果別件数",
		}, []string{"result"}),
		logout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_logout_total",
			Help: "ログアウト件数",
		}),
	}

	reg.MustRegister(c.login, c.register, c.logout)
	return c
}

// RecordLogin はログイン結果を記録します。
func (c *Collector) RecordLogin(result string) {
	c.login.WithLabelValues(result).Inc()
}

// RecordRegister は登録結果を記録します。
func (c *Collector) RecordRegister(result string) {
	c.register.WithLabelValues(result).Inc()
}

// RecordLogout はログアウトを記録します。
func (c *Collector) RecordLogout() {
	c.logout.Inc()
}

// Nop は何も記録しない Recorder です。メトリクス無効時に使います。
type Nop struct{}

func (Nop) RecordLogin(string)    {}
func (Nop) RecordRegister(string) {}
func (Nop) RecordLogout()         {}

// Handler は Prometheus スクレイプ用の HTTP ハンドラーを返します。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
