// Package console delivers notifications to the process log.
package console

import (
	"context"

	"planwise/internal/transport"
	logx "planwise/pkg/logx"
)

type Adapter struct {
	log logx.Logger
}

func New(log logx.Logger) *Adapter {
	return &Adapter{log: log.With(logx.String("comp", "console"))}
}

func (a *Adapter) Name() string { return "console" }

func (a *Adapter) Send(ctx context.Context, n transport.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields := []logx.Field{
		logx.String("kind", string(n.Kind)),
		logx.Int64("user", n.UserID),
		logx.String("text", n.Text),
	}
	if n.TaskID != 0 {
		fields = append(fields, logx.Int64("task", n.TaskID))
	}
	a.log.Info("🔔 "+n.Title, fields...)
	return nil
}
