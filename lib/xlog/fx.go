package xlog

import (
	"strings"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var _ fxevent.Logger = (*FxXLogger)(nil)

// FxXLogger routes the fx application lifecycle events into an XLogger.
type FxXLogger struct {
	logger XLogger
}

func NewFxXLogger(logger XLogger) *FxXLogger {
	return &FxXLogger{logger: logger}
}

func (l *FxXLogger) LogEvent(event fxevent.Event) {
	if l == nil || l.logger == nil {
		return
	}

	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		l.logger.Debug("HOOK OnStart",
			zap.String("function", e.FunctionName),
			zap.String("caller", e.CallerName),
		)
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			l.logger.Error(e.Err, "HOOK OnStart failed",
				zap.String("function", e.FunctionName),
				zap.String("caller", e.CallerName),
				zap.Duration("in", e.Runtime),
			)
		} else {
			l.logger.Debug("HOOK OnStart successfully",
				zap.String("function", e.FunctionName),
				zap.String("caller", e.CallerName),
				zap.Duration("in", e.Runtime),
			)
		}
	case *fxevent.OnStopExecuting:
		l.logger.Info("HOOK OnStop executing",
			zap.String("function", e.FunctionName),
			zap.String("caller", e.CallerName),
		)
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			l.logger.Error(e.Err, "HOOK OnStop failed",
				zap.String("function", e.FunctionName),
				zap.String("caller", e.CallerName),
				zap.Duration("in", e.Runtime),
			)
		} else {
			l.logger.Info("HOOK OnStop successfully",
				zap.String("function", e.FunctionName),
				zap.String("caller", e.CallerName),
				zap.Duration("in", e.Runtime),
			)
		}
	case *fxevent.Supplied:
		if e.Err != nil {
			l.logger.Error(e.Err, "SUPPLY ERROR", zap.String("type", e.TypeName))
		} else {
			l.logger.Debug("SUPPLIED", zap.String("type", e.TypeName), zap.String("module", e.ModuleName))
		}
	case *fxevent.Provided:
		if e.Err != nil {
			l.logger.Error(e.Err, "PROVIDE ERROR", zap.String("constructor", e.ConstructorName))
			return
		}
		l.logger.Debug("PROVIDED",
			zap.String("constructor", e.ConstructorName),
			zap.String("types", strings.Join(e.OutputTypeNames, ",")),
			zap.String("module", e.ModuleName),
			zap.Bool("private", e.Private),
		)
	case *fxevent.Invoking:
		l.logger.Debug("INVOKING", zap.String("function", e.FunctionName), zap.String("module", e.ModuleName))
	case *fxevent.Invoked:
		if e.Err != nil {
			l.logger.Error(e.Err, "INVOKE FAILED",
				zap.String("function", e.FunctionName),
				zap.String("trace", e.Trace),
			)
		}
	case *fxevent.Stopping:
		l.logger.Info("STOPPING", zap.String("signal", strings.ToUpper(e.Signal.String())))
	case *fxevent.Stopped:
		if e.Err != nil {
			l.logger.Error(e.Err, "STOP FAILED")
		}
	case *fxevent.RollingBack:
		l.logger.Error(e.StartErr, "START FAILED, ROLLING BACK")
	case *fxevent.RolledBack:
		if e.Err != nil {
			l.logger.Error(e.Err, "ROLLBACK FAILED")
		}
	case *fxevent.Started:
		if e.Err != nil {
			l.logger.Error(e.Err, "START FAILED")
		} else {
			l.logger.Info("RUNNING")
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			l.logger.Error(e.Err, "CUSTOM LOGGER INITIALIZATION FAILED")
		} else {
			l.logger.Debug("LOGGER INITIALIZED", zap.String("function", e.ConstructorName))
		}
	default:
	}
}
