package repository

import (
	"encoding/json"
	"reflect"
)

// Metadata holds versioning info for the manifest file.
type Metadata struct {
	LastUpdate int64 `json:"lastUpdate"` // Unix timestamp in milliseconds
}

// Manifest lists the resources pre-populated into the shell container on install.
type Manifest struct {
	Metadata Metadata `json:"metadata"`
	Version  string   `json:"version" validate:"required,excludesall=/"`
	Shell    string   `json:"shell" validate:"required,startswith=/"`
	Offline  string   `json:"offline" validate:"required,startswith=/"`
	Assets   []string `json:"assets" validate:"dive,required,startswith=/"`
	Fonts    []string `json:"fonts" validate:"dive,required,url"`
}

// DefaultManifest is written when no manifest file exists yet.
func DefaultManifest() Manifest {
	return Manifest{
		Version: "v1",
		Shell:   "/index.html",
		Offline: "/offline.html",
		Assets: []string{
			"/",
			"/static/js/bundle.js",
			"/static/css/main.css",
			"/manifest.json",
			"/icons/icon-192x192.png",
			"/icons/icon-512x512.png",
		},
		Fonts: []string{
			"https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600;700&display=swap",
		},
	}
}

// ApplyDefaults sets fallback values after decode.
func (m *Manifest) ApplyDefaults() {
	if m.Shell == "" {
		m.Shell = "/index.html"
	}
	if m.Offline == "" {
		m.Offline = "/offline.html"
	}
	if m.Assets == nil {
		m.Assets = []string{}
	}
	if m.Fonts == nil {
		m.Fonts = []string{}
	}
}

// URLs returns every resource to pre-populate, shell first, without duplicates.
func (m Manifest) URLs() []string {
	seen := map[string]bool{}
	var out []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	add(m.Shell)
	add(m.Offline)
	for _, a := range m.Assets {
		add(a)
	}
	for _, f := range m.Fonts {
		add(f)
	}
	return out
}

// AreManifestsEqual compares two manifests ignoring Metadata.
func AreManifestsEqual(a, b *Manifest) bool {
	if a == nil || b == nil {
		return a == b
	}

	aBytes, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bBytes, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var aMap, bMap map[string]interface{}
	if err := json.Unmarshal(aBytes, &aMap); err != nil {
		return false
	}
	if err := json.Unmarshal(bBytes, &bMap); err != nil {
		return false
	}

	delete(aMap, "metadata")
	delete(bMap, "metadata")

	return reflect.DeepEqual(aMap, bMap)
}
