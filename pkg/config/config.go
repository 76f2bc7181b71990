// Package config models the per-vhost HLS configuration the controller
// reads at publish time. In the original design this is backed by a
// global config singleton; here it is a Provider passed in at
// construction, exposing per-vhost read accessors — no package-level
// mutable state.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// AudioCodecName is the hls_acodec config value.
type AudioCodecName string

// Audio codec config values.
const (
	AudioAAC      AudioCodecName = "aac"
	AudioMP3      AudioCodecName = "mp3"
	AudioDisabled AudioCodecName = "an"
)

// VideoCodecName is the hls_vcodec config value.
type VideoCodecName string

// Video codec config values.
const (
	VideoH264     VideoCodecName = "h264"
	VideoDisabled VideoCodecName = "vn"
)

// Vhost carries every field spec.md §6 lists under "Config inputs",
// read once per vhost at publish time and immutable until the next
// publish or an explicit reload.
type Vhost struct {
	Name string `yaml:"vhost"`
	App  string `yaml:"app"`

	Enabled bool `yaml:"hls_enabled"`

	Fragment    time.Duration `yaml:"hls_fragment"`
	Window      time.Duration `yaml:"hls_window"`
	TDRatio     float64       `yaml:"hls_td_ratio"`
	AofRatio    float64       `yaml:"hls_aof_ratio"`
	Path        string        `yaml:"hls_path"`
	M3U8File    string        `yaml:"hls_m3u8_file"`
	TSFile      string        `yaml:"hls_ts_file"`
	EntryPrefix string        `yaml:"hls_entry_prefix"`

	Cleanup      bool `yaml:"hls_cleanup"`
	WaitKeyframe bool `yaml:"hls_wait_keyframe"`
	TSFloor      bool `yaml:"hls_ts_floor"`

	Dispose time.Duration `yaml:"hls_dispose"`

	Acodec      AudioCodecName `yaml:"hls_acodec"`
	Vcodec      VideoCodecName `yaml:"hls_vcodec"`
	DtsDirectly bool           `yaml:"hls_dts_directly"`

	Keys            bool   `yaml:"hls_keys"`
	FragmentsPerKey int    `yaml:"hls_fragments_per_key"`
	KeyFile         string `yaml:"hls_key_file"`
	KeyFilePath     string `yaml:"hls_key_file_path"`
	KeyURL          string `yaml:"hls_key_url"`

	NbNotify int `yaml:"hls_nb_notify"`

	OnHLSHooks       []string `yaml:"on_hls"`
	OnHLSNotifyHooks []string `yaml:"on_hls_notify"`
}

// UnmarshalYAML decodes duration fields from Go duration strings
// ("10s", "1m30s") since yaml.v2 has no built-in notion of time.Duration.
func (v *Vhost) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type rawVhost struct {
		Name string `yaml:"vhost"`
		App  string `yaml:"app"`

		Enabled bool `yaml:"hls_enabled"`

		Fragment    string  `yaml:"hls_fragment"`
		Window      string  `yaml:"hls_window"`
		TDRatio     float64 `yaml:"hls_td_ratio"`
		AofRatio    float64 `yaml:"hls_aof_ratio"`
		Path        string  `yaml:"hls_path"`
		M3U8File    string  `yaml:"hls_m3u8_file"`
		TSFile      string  `yaml:"hls_ts_file"`
		EntryPrefix string  `yaml:"hls_entry_prefix"`

		Cleanup      bool `yaml:"hls_cleanup"`
		WaitKeyframe bool `yaml:"hls_wait_keyframe"`
		TSFloor      bool `yaml:"hls_ts_floor"`

		Dispose string `yaml:"hls_dispose"`

		Acodec      AudioCodecName `yaml:"hls_acodec"`
		Vcodec      VideoCodecName `yaml:"hls_vcodec"`
		DtsDirectly bool           `yaml:"hls_dts_directly"`

		Keys            bool   `yaml:"hls_keys"`
		FragmentsPerKey int    `yaml:"hls_fragments_per_key"`
		KeyFile         string `yaml:"hls_key_file"`
		KeyFilePath     string `yaml:"hls_key_file_path"`
		KeyURL          string `yaml:"hls_key_url"`

		NbNotify int `yaml:"hls_nb_notify"`

		OnHLSHooks       []string `yaml:"on_hls"`
		OnHLSNotifyHooks []string `yaml:"on_hls_notify"`
	}

	var raw rawVhost
	if err := unmarshal(&raw); err != nil {
		return err
	}

	parseDuration := func(field, s string) (time.Duration, error) {
		if s == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", field, err)
		}
		return d, nil
	}

	fragment, err := parseDuration("hls_fragment", raw.Fragment)
	if err != nil {
		return err
	}
	window, err := parseDuration("hls_window", raw.Window)
	if err != nil {
		return err
	}
	dispose, err := parseDuration("hls_dispose", raw.Dispose)
	if err != nil {
		return err
	}

	*v = Vhost{
		Name: raw.Name, App: raw.App,
		Enabled:      raw.Enabled,
		Fragment:     fragment,
		Window:       window,
		TDRatio:      raw.TDRatio,
		AofRatio:     raw.AofRatio,
		Path:         raw.Path,
		M3U8File:     raw.M3U8File,
		TSFile:       raw.TSFile,
		EntryPrefix:  raw.EntryPrefix,
		Cleanup:      raw.Cleanup,
		WaitKeyframe: raw.WaitKeyframe,
		TSFloor:      raw.TSFloor,
		Dispose:      dispose,
		Acodec:       raw.Acodec,
		Vcodec:       raw.Vcodec,
		DtsDirectly:  raw.DtsDirectly,

		Keys:            raw.Keys,
		FragmentsPerKey: raw.FragmentsPerKey,
		KeyFile:         raw.KeyFile,
		KeyFilePath:     raw.KeyFilePath,
		KeyURL:          raw.KeyURL,

		NbNotify: raw.NbNotify,

		OnHLSHooks:       raw.OnHLSHooks,
		OnHLSNotifyHooks: raw.OnHLSNotifyHooks,
	}
	return nil
}

// MaxTD is max_td = hls_fragment * td_ratio, spec.md §4.2.
func (v Vhost) MaxTD() time.Duration {
	return time.Duration(float64(v.Fragment) * v.TDRatio)
}

// Validate enforces the minimum set of invariants on_publish needs
// before it can call muxer.update_config; a failure here is a config
// error and leaves the controller's enabled flag false.
func (v Vhost) Validate() error {
	if v.Fragment <= 0 {
		return fmt.Errorf("hls_fragment must be > 0")
	}
	if v.Window <= 0 {
		return fmt.Errorf("hls_window must be > 0")
	}
	if v.TDRatio <= 0 {
		return fmt.Errorf("hls_td_ratio must be > 0")
	}
	if v.Path == "" || v.M3U8File == "" || v.TSFile == "" {
		return fmt.Errorf("hls_path, hls_m3u8_file and hls_ts_file are required")
	}
	if v.Keys {
		if v.FragmentsPerKey <= 0 {
			return fmt.Errorf("hls_fragments_per_key must be > 0 when hls_keys is set")
		}
		if v.KeyFile == "" || v.KeyFilePath == "" {
			return fmt.Errorf("hls_key_file and hls_key_file_path are required when hls_keys is set")
		}
	}
	return nil
}

// Provider exposes per-vhost read accessors. It replaces the original
// global config singleton (_srs_config) with an explicit collaborator
// passed into the controller at construction.
type Provider interface {
	Vhost(name, app string) (Vhost, error)
}

// StaticProvider is a Provider backed by an in-memory map, populated
// from a YAML file in the same key/value style SRS and the teacher's
// addons use for persisted settings.
type StaticProvider struct {
	vhosts map[string]Vhost
}

// NewStaticProvider builds a StaticProvider from already-decoded vhosts.
func NewStaticProvider(vhosts []Vhost) *StaticProvider {
	p := &StaticProvider{vhosts: make(map[string]Vhost, len(vhosts))}
	for _, v := range vhosts {
		p.vhosts[key(v.Name, v.App)] = v
	}
	return p
}

// LoadYAMLFile reads a list of Vhost entries from a YAML file.
func LoadYAMLFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var vhosts []Vhost
	if err := yaml.Unmarshal(data, &vhosts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return NewStaticProvider(vhosts), nil
}

// Vhost implements Provider.
func (p *StaticProvider) Vhost(name, app string) (Vhost, error) {
	v, ok := p.vhosts[key(name, app)]
	if !ok {
		return Vhost{}, fmt.Errorf("no hls config for vhost %q app %q", name, app)
	}
	return v, nil
}

func key(name, app string) string {
	return name + "/" + app
}
