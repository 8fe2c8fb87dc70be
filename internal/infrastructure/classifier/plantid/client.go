package plantid

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/upstream"
)

const (
	DefaultBaseURL = "https://api.plant.id/v2"
	unknownPlant   = "Unknown Plant"
	serviceName    = "plantid"
)

type Client struct {
	baseURL    string
	apiKey     string
	sendURL    bool
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	BaseURL string
	APIKey  string
	// SendImageURL forwards the stored image URL instead of inline base64 data.
	SendImageURL       bool
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(options Options) (*Client, error) {
	if strings.TrimSpace(options.APIKey) == "" {
		return nil, errors.New("plantid: api key is required")
	}
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     options.APIKey,
		sendURL:    options.SendImageURL,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}, nil
}

type identifyRequest struct {
	Images        []string `json:"images"`
	PlantDetails  []string `json:"plant_details"`
	Health        string   `json:"health"`
	DiseaseDetail []string `json:"disease_details,omitempty"`
}

func (c *Client) Identify(ctx context.Context, image domain.ImageInput) (domain.PlantIdentification, error) {
	payload := identifyRequest{
		Images:        []string{c.imageReference(image)},
		PlantDetails:  []string{"common_names", "url", "wiki_description", "taxonomy"},
		Health:        "all",
		DiseaseDetail: []string{"description", "treatment"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.PlantIdentification{}, fmt.Errorf("marshal identify request: %w", err)
	}

	var resp identifyResponse
	err = upstream.Call(ctx, c.httpClient, c.executor, serviceName, "identify", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/identify", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Api-Key", c.apiKey)
		return req, nil
	}, &resp)
	if err != nil {
		return domain.PlantIdentification{}, err
	}

	return resp.toDomain()
}

func (c *Client) imageReference(image domain.ImageInput) string {
	if c.sendURL && image.URL != "" {
		return image.URL
	}
	return base64.StdEncoding.EncodeToString(image.Data)
}
