/*
 * Copyright 2024 SRVX Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/icon-project/btp2/common/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	SlowQueryThreshold = time.Millisecond * 200
)

// gormLogger bridges gorm's logger interface to the btp2-style logger.
type gormLogger struct {
	l log.Logger
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	var lv log.Level
	switch level {
	case logger.Silent:
		lv = log.PanicLevel
	case logger.Error:
		lv = log.ErrorLevel
	case logger.Warn:
		lv = log.WarnLevel
	case logger.Info:
		lv = log.InfoLevel
	}
	g.l.SetLevel(lv)
	return g
}

func (g *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	g.l.Logf(log.InfoLevel, msg, data...)
}

func (g *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	g.l.Logf(log.WarnLevel, msg, data...)
}

func (g *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	g.l.Logf(log.ErrorLevel, msg, data...)
}

func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	lv := g.l.GetLevel()
	if lv <= log.PanicLevel {
		return
	}
	elapsed := float64(time.Since(begin).Nanoseconds()) / 1e6
	switch {
	case err != nil && err != gorm.ErrRecordNotFound && lv <= log.ErrorLevel:
		sql, rows := fc()
		g.l.Logf(log.ErrorLevel, "err:%s [%.3fms] [rows:%v] %s", err, elapsed, rows, sql)
	case elapsed > float64(SlowQueryThreshold.Milliseconds()) && lv <= log.WarnLevel:
		sql, rows := fc()
		g.l.Logf(log.WarnLevel, "%s [%.3fms] [rows:%v] %s",
			fmt.Sprintf("SLOW SQL >= %v", SlowQueryThreshold), elapsed, rows, sql)
	case lv <= log.TraceLevel:
		sql, rows := fc()
		g.l.Logf(log.TraceLevel, "[%.3fms] [rows:%v] %s", elapsed, rows, sql)
	}
}
