// Copyright 2025 The AgentLens Authors
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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/agentlens/agentlens/pkg/rpcclient"
	"github.com/agentlens/agentlens/pkg/validate"
)

// CardCmd fetches an agent card and reports its conformance defects.
// The exit code is non-zero when the card has defects, so the command
// can gate CI checks on agent conformance.
type CardCmd struct {
	URL     string        `arg:"" help:"Agent base URL."`
	JSON    bool          `help:"Emit the card and defects as JSON."`
	Timeout time.Duration `help:"Card fetch timeout." default:"30s"`
}

func (c *CardCmd) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	client := rpcclient.New(c.URL, rpcclient.Config{Timeout: c.Timeout})
	defer client.Close()

	card, err := client.ResolveCard(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch agent card: %w", err)
	}
	defects := validate.AgentCard(card.Raw)

	if c.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(map[string]any{
			"card":              card.Raw,
			"validation_errors": defects,
		}); err != nil {
			return err
		}
	} else {
		printCard(c.URL, card, defects)
	}

	if len(defects) > 0 {
		return fmt.Errorf("%d validation defect(s) found", len(defects))
	}
	return nil
}

// ANSI colors for card rendering on a terminal.
const (
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
	colorReset  = "\033[0m"
)

func printCard(agentURL string, card *rpcclient.Card, defects []string) {
	colored := term.IsTerminal(int(os.Stdout.Fd()))
	paint := func(code, s string) string {
		if !colored {
			return s
		}
		return code + s + colorReset
	}

	fmt.Printf("\n%s\n", paint(colorBold, "Agent card: "+agentURL))
	printCardField("Name", card.Raw["name"])
	printCardField("Description", card.Raw["description"])
	printCardField("Version", card.Raw["version"])
	printCardField("URL", card.Raw["url"])
	printCardField("Streaming", card.Streaming())

	if skills, ok := card.Raw["skills"].([]any); ok {
		printCardField("Skills", len(skills))
		for _, raw := range skills {
			skill, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := skill["name"].(string)
			if name == "" {
				name, _ = skill["id"].(string)
			}
			fmt.Println(paint(colorDim, "    - "+name))
		}
	}

	fmt.Println()
	if len(defects) == 0 {
		fmt.Println(paint(colorGreen, "No validation defects."))
		return
	}
	fmt.Println(paint(colorYellow, fmt.Sprintf("%d validation defect(s):", len(defects))))
	for _, defect := range defects {
		fmt.Printf("  - %s\n", defect)
	}
}

// printCardField prints one aligned card field, skipping absent values.
func printCardField(name string, value any) {
	if value == nil || value == "" {
		return
	}
	fmt.Printf("  %-13s %v\n", name+":", value)
}
