package bot

import (
	"fmt"
	"time"

	"github.com/prohmpiriya/botfleet/pkg/logger"
	"go.uber.org/zap"
)

// Recover turns handler panics into errors so one update never kills the instance
func Recover(log *logger.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(c *Context) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithContext(c.Context()).Error("Handler panic",
						zap.Any("panic", rec), zap.String("user_id", c.UserID()))
					err = fmt.Errorf("handler panic: %v", rec)
				}
			}()
			return next(c)
		}
	}
}

// Logging records the duration and outcome of each update
func Logging(log *logger.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(c *Context) error {
			start := time.Now()
			err := next(c)

			fields := []zap.Field{
				zap.String("user_id", c.UserID()),
				zap.Bool("callback", c.Update.IsCallback()),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				log.WithContext(c.Context()).Error("Update failed", append(fields, zap.Error(err))...)
				return err
			}
			log.WithContext(c.Context()).Debug("Update handled", fields...)
			return nil
		}
	}
}
