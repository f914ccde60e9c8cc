package domain

type ManifestBehaviorHints struct {
	Configurable          bool `json:"configurable"`
	ConfigurationRequired bool `json:"configurationRequired"`
}

type Manifest struct {
	ID            string                 `json:"id"`
	Version       string                 `json:"version"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Logo          string                 `json:"logo,omitempty"`
	Resources     []string               `json:"resources"`
	Types         []string               `json:"types"`
	IDPrefixes    []string               `json:"idPrefixes"`
	Catalogs      []string               `json:"catalogs"`
	BehaviorHints *ManifestBehaviorHints `json:"behaviorHints,omitempty"`
}

func DefaultManifest() Manifest {
	return Manifest{
		ID:          "org.zamunda.addon",
		Version:     "1.0.1",
		Name:        "Stremio Zamunda",
		Description: "Streams movies by scraping torrents from Zamunda.",
		Logo:        "https://github.com/murrou-cell/zamunda-api/blob/main/logo/logo.jpg?raw=true",
		Resources:   []string{"stream"},
		Types:       []string{string(MediaTypeMovie), string(MediaTypeSeries)},
		IDPrefixes:  []string{"tt"},
		Catalogs:    []string{},
		BehaviorHints: &ManifestBehaviorHints{
			Configurable:          true,
			ConfigurationRequired: true,
		},
	}
}

// Configured is the manifest served under an install URL that already
// carries a configuration, so the client does not ask for one again.
func (m Manifest) Configured() Manifest {
	cloned := m
	cloned.BehaviorHints = nil
	cloned.Resources = append([]string(nil), m.Resources...)
	cloned.Types = append([]string(nil), m.Types...)
	cloned.IDPrefixes = append([]string(nil), m.IDPrefixes...)
	cloned.Catalogs = append([]string{}, m.Catalogs...)
	return cloned
}
