package pipeline

import (
	"go.uber.org/zap"

	"assetweaver/internal/dag"
	"assetweaver/internal/logging"
)

// logObserver reports every terminal chain on the console.
type logObserver struct {
	logger *zap.Logger
}

func (o *logObserver) OnChainTerminal(name string, st dag.ChainState, res *dag.NodeResult) {
	log := logging.Chain(o.logger, name)
	switch st {
	case dag.ChainFailed:
		var err error
		if res != nil {
			err = res.Err
		}
		log.Error("Chain failed", zap.Error(err))
	case dag.ChainSkipped:
		log.Warn("Chain skipped after upstream failure")
	case dag.ChainCached:
		log.Info("Chain up to date", zap.Int("restored", len(res.Changed)))
	default:
		fields := []zap.Field{zap.Int("outputs", len(res.Outputs)), zap.Int("changed", len(res.Changed))}
		if res.FromCache {
			fields = append(fields, zap.Bool("cached", true))
		}
		log.Info("Chain finished", fields...)
	}
}

type multiObserver []dag.NodeObserver

func (m multiObserver) OnChainTerminal(name string, st dag.ChainState, res *dag.NodeResult) {
	for _, o := range m {
		if o != nil {
			o.OnChainTerminal(name, st, res)
		}
	}
}
