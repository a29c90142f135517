// Package autoload configures the global logger from the environment
// as an import side effect.
package autoload

import (
	configx "github.com/careloop/healthcoach/pkg/config"
	logx "github.com/careloop/healthcoach/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
