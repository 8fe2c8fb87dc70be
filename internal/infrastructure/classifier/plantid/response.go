package plantid

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

type identifyResponse struct {
	Suggestions      []suggestion      `json:"suggestions"`
	Health           *legacyHealth     `json:"health"`
	HealthAssessment *healthAssessment `json:"health_assessment"`
}

type suggestion struct {
	PlantName    string       `json:"plant_name"`
	Probability  float64      `json:"probability"`
	PlantDetails plantDetails `json:"plant_details"`
}

type plantDetails struct {
	CommonNames     []string `json:"common_names"`
	URL             string   `json:"url"`
	WikiDescription flexText `json:"wiki_description"`
	ScientificName  string   `json:"scientific_name"`
	Taxonomy        taxonomy `json:"taxonomy"`
}

type taxonomy struct {
	Family  string `json:"family"`
	Genus   string `json:"genus"`
	Species string `json:"species"`
}

type legacyHealth struct {
	DiseaseSuggestions []legacyDisease `json:"disease_suggestions"`
}

type legacyDisease struct {
	Name        string   `json:"name"`
	Probability float64  `json:"probability"`
	Description flexText `json:"description"`
	Symptoms    flexList `json:"symptoms"`
	Treatment   flexList `json:"treatment"`
}

type healthAssessment struct {
	IsHealthy *bool             `json:"is_healthy"`
	Diseases  []assessedDisease `json:"diseases"`
}

type assessedDisease struct {
	Name           string  `json:"name"`
	Probability    float64 `json:"probability"`
	DiseaseDetails struct {
		LocalName   string   `json:"local_name"`
		Description flexText `json:"description"`
		Symptoms    flexList `json:"symptoms"`
		Treatment   flexList `json:"treatment"`
	} `json:"disease_details"`
}

func (r identifyResponse) toDomain() (domain.PlantIdentification, error) {
	if len(r.Suggestions) == 0 {
		return domain.PlantIdentification{}, domain.WrapError(
			domain.ErrUpstream,
			"plantid identify",
			errors.New("no plant identification results found"),
		)
	}

	top := r.Suggestions[0]
	details := top.PlantDetails
	name := unknownPlant
	if len(details.CommonNames) > 0 && strings.TrimSpace(details.CommonNames[0]) != "" {
		name = details.CommonNames[0]
	} else if top.PlantName != "" {
		name = top.PlantName
	}
	species := details.Taxonomy.Species
	if species == "" {
		species = firstNonEmpty(details.ScientificName, top.PlantName)
	}

	return domain.PlantIdentification{
		PlantName:       name,
		PlantFamily:     details.Taxonomy.Family,
		PlantGenus:      details.Taxonomy.Genus,
		PlantSpecies:    species,
		Probability:     top.Probability,
		Diseases:        r.diseases(),
		WikiDescription: string(details.WikiDescription),
		WikiURL:         details.URL,
	}, nil
}

// diseases prefers the legacy health block and falls back to health_assessment.
func (r identifyResponse) diseases() []domain.Disease {
	out := []domain.Disease{}
	if r.Health != nil && len(r.Health.DiseaseSuggestions) > 0 {
		for _, d := range r.Health.DiseaseSuggestions {
			out = append(out, domain.Disease{
				Name:        d.Name,
				Probability: d.Probability,
				Description: string(d.Description),
				Symptoms:    nonNil(d.Symptoms),
				Treatments:  nonNil(d.Treatment),
			})
		}
		return out
	}
	if r.HealthAssessment == nil {
		return out
	}
	if r.HealthAssessment.IsHealthy != nil && *r.HealthAssessment.IsHealthy {
		return out
	}
	for _, d := range r.HealthAssessment.Diseases {
		out = append(out, domain.Disease{
			Name:        firstNonEmpty(d.DiseaseDetails.LocalName, d.Name),
			Probability: d.Probability,
			Description: string(d.DiseaseDetails.Description),
			Symptoms:    nonNil(d.DiseaseDetails.Symptoms),
			Treatments:  nonNil(d.DiseaseDetails.Treatment),
		})
	}
	return out
}

// flexText accepts either a plain string or an object with a value field.
type flexText string

func (t *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = flexText(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = flexText(obj.Value)
	return nil
}

// flexList accepts a list of strings, a single string, or an object of lists
// such as {"biological":[...],"chemical":[...],"prevention":[...]}.
type flexList []string

var treatmentGroups = []string{"biological", "chemical", "prevention"}

func (l *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = flexList{s}
		return nil
	case data[0] == '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}

	var groups map[string][]string
	if err := json.Unmarshal(data, &groups); err != nil {
		return err
	}
	var out flexList
	for _, key := range treatmentGroups {
		out = append(out, groups[key]...)
	}
	*l = out
	return nil
}

func nonNil(list flexList) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
