// Package huggingface classifies plant images with hosted image-classification endpoints.
// A species endpoint is required; a disease endpoint is optional.
package huggingface

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/upstream"
)

const (
	DefaultSpeciesThreshold = 0.55
	DefaultDiseaseThreshold = 0.60

	serviceName       = "huggingface"
	lowConfidenceName = "Không xác định (thiếu độ tin cậy)"
)

type Options struct {
	SpeciesEndpoint    string
	DiseaseEndpoint    string
	Token              string
	SpeciesThreshold   float64
	DiseaseThreshold   float64
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	speciesEndpoint  string
	diseaseEndpoint  string
	token            string
	speciesThreshold float64
	diseaseThreshold float64
	httpClient       *http.Client
	executor         *resilience.Executor
}

func New(options Options) (*Client, error) {
	if strings.TrimSpace(options.SpeciesEndpoint) == "" {
		return nil, errors.New("huggingface: species endpoint is required")
	}
	if strings.TrimSpace(options.Token) == "" {
		return nil, errors.New("huggingface: token is required")
	}
	speciesThreshold := options.SpeciesThreshold
	if speciesThreshold <= 0 {
		speciesThreshold = DefaultSpeciesThreshold
	}
	diseaseThreshold := options.DiseaseThreshold
	if diseaseThreshold <= 0 {
		diseaseThreshold = DefaultDiseaseThreshold
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		speciesEndpoint:  options.SpeciesEndpoint,
		diseaseEndpoint:  options.DiseaseEndpoint,
		token:            options.Token,
		speciesThreshold: speciesThreshold,
		diseaseThreshold: diseaseThreshold,
		httpClient:       &http.Client{Timeout: timeout},
		executor:         options.ResilienceExecutor,
	}, nil
}

type label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (c *Client) Identify(ctx context.Context, image domain.ImageInput) (domain.PlantIdentification, error) {
	if len(image.Data) == 0 {
		return domain.PlantIdentification{}, domain.WrapError(domain.ErrInvalidInput, "huggingface identify", errors.New("image data is required"))
	}

	species, err := c.classify(ctx, "species", c.speciesEndpoint, image.Data)
	if err != nil {
		return domain.PlantIdentification{}, err
	}

	var disease label
	if c.diseaseEndpoint != "" {
		disease, err = c.classify(ctx, "disease", c.diseaseEndpoint, image.Data)
		if err != nil {
			return domain.PlantIdentification{}, err
		}
	}

	plantName := lowConfidenceName
	if species.Score >= c.speciesThreshold && species.Label != "" {
		plantName = cleanLabel(species.Label)
	}

	diseases := []domain.Disease{}
	if disease.Score >= c.diseaseThreshold && disease.Label != "" && !isHealthyLabel(disease.Label) {
		name := cleanLabel(disease.Label)
		diseases = append(diseases, domain.Disease{
			Name:        name,
			Probability: disease.Score,
			Symptoms:    []string{},
			Treatments:  Recommendations(name, plantName),
		})
	}

	return domain.PlantIdentification{
		PlantName:   plantName,
		Probability: max(species.Score, disease.Score),
		Diseases:    diseases,
	}, nil
}

// classify returns the top-scoring label of an endpoint.
func (c *Client) classify(ctx context.Context, operation, endpoint string, data []byte) (label, error) {
	var labels []label
	err := upstream.Call(ctx, c.httpClient, c.executor, serviceName, operation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	}, &labels)
	if err != nil {
		return label{}, err
	}
	if len(labels) == 0 {
		return label{}, nil
	}
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].Score > labels[j].Score })
	return labels[0], nil
}

var (
	blightPattern = regexp.MustCompile(`(?i)blight|bệnh`)
	tomatoPattern = regexp.MustCompile(`(?i)tomato|cà chua|solanum lycopersicum`)
)

// Recommendations derives care steps from disease and species names.
func Recommendations(diseaseName, speciesName string) []string {
	var recs []string
	if blightPattern.MatchString(diseaseName) {
		recs = append(recs,
			"Cắt bỏ phần bị bệnh và tiêu hủy an toàn",
			"Tránh làm ướt lá, tưới vào gốc",
		)
	}
	if tomatoPattern.MatchString(speciesName) {
		recs = append(recs, "Duy trì khoảng cách cây đủ thoáng cho cà chua")
	}
	if len(recs) == 0 {
		recs = append(recs,
			"Theo dõi thêm 48-72 giờ để xác nhận triệu chứng",
			"Cải thiện thông thoáng, tránh úng nước",
		)
	}
	return recs
}

func isHealthyLabel(value string) bool {
	return strings.Contains(strings.ToLower(value), "healthy")
}

// cleanLabel turns dataset labels such as "Tomato___Early_blight" into "Tomato Early blight".
func cleanLabel(value string) string {
	value = strings.ReplaceAll(value, "_", " ")
	return strings.Join(strings.Fields(value), " ")
}
