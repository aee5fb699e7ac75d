package cluster

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

const (
	inferenceServiceGroup    = "serving.kserve.io"
	inferenceServiceVersion  = "v1beta1"
	inferenceServiceResource = "inferenceservices"
	inferenceServiceKind     = "InferenceService"

	serviceLabel       = "serving.kserve.io/inferenceservice"
	componentLabel     = "component"
	defaultContainer   = "kserve-container"
	defaultLogTailSize = 500
)

const (
	serviceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"
	serviceAccountCAPath    = "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"
)

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("cluster API status %d: %s", e.StatusCode, e.Message)
}

// ClientConfig carries the connection parameters of the cluster API.
type ClientConfig struct {
	BaseURL    string
	Token      string
	CACertPEM  []byte
	HTTPClient *http.Client
}

// Client talks to the cluster API over REST. It implements Interface.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(config ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("cluster API base URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if len(config.CACertPEM) > 0 {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(config.CACertPEM) {
				return nil, errors.New("cluster CA certificate is not valid PEM")
			}
			transport.TLSClientConfig = &tls.Config{RootCAs: pool}
		}
		// Watch requests are long-lived; the per-request context carries
		// the deadline, not the client.
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(config.Token),
		client:  httpClient,
	}, nil
}

// NewInClusterClient builds a client from the pod's service account mount and
// the KUBERNETES_SERVICE_HOST/PORT environment.
func NewInClusterClient() (*Client, error) {
	host := os.Getenv("KUBERNETES_SERVICE_HOST")
	port := os.Getenv("KUBERNETES_SERVICE_PORT")
	if host == "" || port == "" {
		return nil, errors.New("not running in a cluster: KUBERNETES_SERVICE_HOST unset")
	}

	token, err := os.ReadFile(serviceAccountTokenPath)
	if err != nil {
		return nil, fmt.Errorf("read service account token: %w", err)
	}
	caCert, err := os.ReadFile(serviceAccountCAPath)
	if err != nil {
		return nil, fmt.Errorf("read service account CA: %w", err)
	}

	return NewClient(ClientConfig{
		BaseURL:   "https://" + host + ":" + port,
		Token:     strings.TrimSpace(string(token)),
		CACertPEM: caCert,
	})
}

func (c *Client) ListInferenceServices(ctx context.Context, namespace string) ([]Object, error) {
	data, err := c.get(ctx, c.servicesPath(namespace), nil)
	if err != nil {
		return nil, err
	}
	return decodeObjectList(data)
}

func (c *Client) GetInferenceService(ctx context.Context, namespace, name string) (Object, error) {
	data, err := c.get(ctx, c.servicesPath(namespace)+"/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	var object Object
	if err := json.Unmarshal(data, &object); err != nil {
		return nil, fmt.Errorf("decode inference service: %w", err)
	}
	return object, nil
}

func (c *Client) WatchInferenceServices(ctx context.Context, namespace, name string, timeoutSeconds int) (WatchStream, error) {
	query := url.Values{}
	if name != "" {
		query.Set("fieldSelector", "metadata.name="+name)
	}
	return c.openWatch(ctx, c.servicesPath(namespace), query, timeoutSeconds)
}

func (c *Client) ListObjectEvents(ctx context.Context, namespace, name string) ([]Object, error) {
	query := url.Values{}
	query.Set("fieldSelector", eventsFieldSelector(name))
	data, err := c.get(ctx, c.eventsPath(namespace), query)
	if err != nil {
		return nil, err
	}
	return decodeObjectList(data)
}

func (c *Client) WatchObjectEvents(ctx context.Context, namespace, name string, timeoutSeconds int) (WatchStream, error) {
	query := url.Values{}
	query.Set("fieldSelector", eventsFieldSelector(name))
	return c.openWatch(ctx, c.eventsPath(namespace), query, timeoutSeconds)
}

func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	data, err := c.get(ctx, "/api/v1/namespaces", nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeObjectList(data)
	if err != nil {
		return nil, fmt.Errorf("decode namespace list: %w", err)
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if name := item.Name(); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (c *Client) ListComponentPods(ctx context.Context, namespace, name string, components []string) (map[string][]string, error) {
	query := url.Values{}
	query.Set("labelSelector", serviceLabel+"="+name)
	data, err := c.get(ctx, "/api/v1/namespaces/"+url.PathEscape(namespace)+"/pods", query)
	if err != nil {
		return nil, err
	}
	pods, err := decodeObjectList(data)
	if err != nil {
		return nil, fmt.Errorf("decode pod list: %w", err)
	}

	wanted := make(map[string]struct{}, len(components))
	for _, component := range components {
		component = strings.TrimSpace(component)
		if component != "" {
			wanted[component] = struct{}{}
		}
	}

	result := make(map[string][]string)
	for _, pod := range pods {
		component := pod.Labels()[componentLabel]
		if component == "" {
			component = "predictor"
		}
		if len(wanted) > 0 {
			if _, ok := wanted[component]; !ok {
				continue
			}
		}
		if podName := pod.Name(); podName != "" {
			result[component] = append(result[component], podName)
		}
	}
	return result, nil
}

func (c *Client) PodLogs(ctx context.Context, namespace, pod, container string) (string, error) {
	if container == "" {
		container = defaultContainer
	}
	query := url.Values{}
	query.Set("container", container)
	query.Set("tailLines", strconv.Itoa(defaultLogTailSize))
	data, err := c.get(ctx, "/api/v1/namespaces/"+url.PathEscape(namespace)+"/pods/"+url.PathEscape(pod)+"/log", query)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) servicesPath(namespace string) string {
	return "/apis/" + inferenceServiceGroup + "/" + inferenceServiceVersion +
		"/namespaces/" + url.PathEscape(namespace) + "/" + inferenceServiceResource
}

func (c *Client) eventsPath(namespace string) string {
	return "/api/v1/namespaces/" + url.PathEscape(namespace) + "/events"
}

func eventsFieldSelector(name string) string {
	return "involvedObject.kind=" + inferenceServiceKind + ",involvedObject.name=" + name
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	response, err := c.do(ctx, path, query)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read cluster API response: %w", err)
	}
	return body, nil
}

func (c *Client) openWatch(ctx context.Context, path string, query url.Values, timeoutSeconds int) (WatchStream, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("watch", "true")
	if timeoutSeconds > 0 {
		query.Set("timeoutSeconds", strconv.Itoa(timeoutSeconds))
	}
	response, err := c.do(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return newHTTPWatchStream(response.Body), nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build cluster API request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("cluster API request failed: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		message := readErrorMessage(response)
		_ = response.Body.Close()
		return nil, &HTTPError{StatusCode: response.StatusCode, Message: message}
	}
	return response, nil
}

func readErrorMessage(response *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	var status struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &status); err == nil && status.Message != "" {
		return status.Message
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return response.Status
	}
	return text
}
