package main

import (
	"github.com/stellarlinkco/agent-eval/internal/judge"
	"github.com/stellarlinkco/agent-eval/internal/store"
)

var (
	defaultProviderFromConfig = judge.DefaultProviderFromConfig
	openStore                 = store.Open
)
