// Copyright 2026 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command recordctl reconciles, inspects and serves the catalog classes.
package main

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/datarecord/pkg/logger"
	"github.com/united-manufacturing-hub/datarecord/pkg/sentry"
)

var version = "development"

func main() {
	logger.Initialize()
	defer func() { _ = zap.L().Sync() }()

	if err := newRootCommand().Execute(); err != nil {
		logger.For(logger.ComponentCLI).Errorw("command_failed", "error", err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}
