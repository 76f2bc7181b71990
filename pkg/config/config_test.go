package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMaxTD(t *testing.T) {
	v := Vhost{Fragment: 10 * time.Second, TDRatio: 1.5}
	require.Equal(t, 15*time.Second, v.MaxTD())
}

func TestValidateRequiresPositiveFragment(t *testing.T) {
	v := Vhost{Fragment: 0, Window: time.Second, TDRatio: 1, Path: "p", M3U8File: "m", TSFile: "t"}
	require.Error(t, v.Validate())
}

func TestValidateRequiresKeyFieldsWhenKeysEnabled(t *testing.T) {
	v := Vhost{
		Fragment: time.Second, Window: time.Second, TDRatio: 1,
		Path: "p", M3U8File: "m", TSFile: "t",
		Keys: true,
	}
	require.Error(t, v.Validate())

	v.FragmentsPerKey = 3
	v.KeyFile = "k.key"
	v.KeyFilePath = "/keys"
	require.NoError(t, v.Validate())
}

func TestValidateAccepts(t *testing.T) {
	v := Vhost{Fragment: time.Second, Window: time.Second, TDRatio: 1, Path: "p", M3U8File: "m", TSFile: "t"}
	require.NoError(t, v.Validate())
}

func TestStaticProviderLookup(t *testing.T) {
	p := NewStaticProvider([]Vhost{
		{Name: "default", App: "live", Fragment: time.Second},
	})

	v, err := p.Vhost("default", "live")
	require.NoError(t, err)
	require.Equal(t, time.Second, v.Fragment)

	_, err = p.Vhost("default", "missing")
	require.Error(t, err)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hls.yaml")
	yamlContent := `
- vhost: default
  app: live
  hls_fragment: 10s
  hls_window: 60s
  hls_td_ratio: 1.5
  hls_path: /var/hls
  hls_m3u8_file: cam1.m3u8
  hls_ts_file: cam1-[seq].ts
  hls_acodec: aac
  hls_vcodec: h264
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	p, err := LoadYAMLFile(path)
	require.NoError(t, err)

	v, err := p.Vhost("default", "live")
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, v.Fragment)
	require.Equal(t, AudioAAC, v.Acodec)
	require.Equal(t, VideoH264, v.Vcodec)
}
