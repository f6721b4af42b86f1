package risk

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kleros/market-maker/infrastructure/logger"
)

// AlertClient 抽象告警发送。
type AlertClient interface {
	Send(typ, msg string)
}

type Notifier struct {
	alert AlertClient
	log   *logger.Logger
}

func NewNotifier(alert AlertClient, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &Notifier{alert: alert, log: log}
}

func (n *Notifier) NotifyInvariantViolation(err error) {
	n.log.LogRisk("invariant_violation", zap.Error(err))
	n.send("InvariantViolation", err.Error())
}

func (n *Notifier) NotifyKillSwitch(err error) {
	n.log.LogRisk("kill_switch", zap.Error(err))
	n.send("KillSwitch", err.Error())
}

func (n *Notifier) NotifyAnomaly(fillID string, reasons []string) {
	n.log.LogRisk("anomalous_fill", zap.String("fill_id", fillID), zap.Strings("reasons", reasons))
	n.send("AnomalousFill", "fill="+fillID+" reasons="+strings.Join(reasons, ","))
}

func (n *Notifier) send(typ, msg string) {
	if n.alert != nil {
		n.alert.Send(typ, msg)
	}
}
