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

package provider

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseURL turns a config source string into a provider configuration.
// A plain path selects the file provider; a URL selects a provider by
// scheme:
//
//	agentlens.yaml
//	file:///etc/agentlens/config.yaml
//	consul://localhost:8500/agentlens/config
//	etcd://host1:2379,host2:2379/agentlens/config
//	zk://localhost:2181/agentlens/config
//
// The authority may carry several comma-separated endpoints. When the
// authority is empty the provider's conventional local endpoint is used.
func ParseURL(source string) (ProviderConfig, error) {
	if !strings.Contains(source, "://") {
		return ProviderConfig{Type: TypeFile, Path: source}, nil
	}

	u, err := url.Parse(source)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("invalid config source %q: %w", source, err)
	}

	providerType, err := ParseType(u.Scheme)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("invalid config source %q: %w", source, err)
	}

	if providerType == TypeFile {
		if u.Path == "" {
			return ProviderConfig{}, fmt.Errorf("config source %q has no file path", source)
		}
		return ProviderConfig{Type: TypeFile, Path: u.Path}, nil
	}

	path := u.Path
	if providerType == TypeConsul {
		// Consul KV keys carry no leading slash.
		path = strings.TrimPrefix(path, "/")
	}
	if path == "" || path == "/" {
		return ProviderConfig{}, fmt.Errorf("config source %q has no key path", source)
	}

	var endpoints []string
	if u.Host != "" {
		endpoints = strings.Split(u.Host, ",")
	}

	return ProviderConfig{
		Type:      providerType,
		Path:      path,
		Endpoints: endpoints,
	}, nil
}
