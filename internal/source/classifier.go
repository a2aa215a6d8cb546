// internal/source/classifier.go
package source

import (
	"errors"
	"net/url"
	"strings"

	"datasync-service/pkg/models"
)

const DefaultSurveyDomain = "kobotoolbox.org"

// Classifier decides which adapter serves a configured URL.
type Classifier struct {
	SurveyDomain string
}

func NewClassifier(surveyDomain string) *Classifier {
	if surveyDomain == "" {
		surveyDomain = DefaultSurveyDomain
	}
	return &Classifier{SurveyDomain: strings.ToLower(surveyDomain)}
}

// Classify never fails: anything that is not an Excel file or a survey host is generic.
func (c *Classifier) Classify(rawURL string) models.SourceType {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return models.SourceGeneric
	}
	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, ".xlsx") || strings.HasSuffix(path, ".xls") {
		return models.SourceExcel
	}
	if c.IsSurveyHost(rawURL) {
		return models.SourceSurvey
	}
	return models.SourceGeneric
}

func (c *Classifier) IsSurveyHost(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == c.SurveyDomain || strings.HasSuffix(host, "."+c.SurveyDomain)
}

// IsSurveyDataEndpoint reports whether rawURL points at the submissions of one form.
func (c *Classifier) IsSurveyDataEndpoint(rawURL string) bool {
	if !c.IsSurveyHost(rawURL) {
		return false
	}
	u, _ := url.Parse(strings.TrimSpace(rawURL))
	return strings.Contains(u.Path, "/data") || strings.Contains(u.Path, "/submissions")
}

// AuthorizationHeader returns the header value for token, or "" when token is empty.
// Survey hosts use the "Token" scheme, everything else "Bearer".
func (c *Classifier) AuthorizationHeader(rawURL, token string) string {
	if token == "" {
		return ""
	}
	if c.IsSurveyHost(rawURL) {
		return "Token " + token
	}
	return "Bearer " + token
}

// SurveyBaseURL derives the API root (<scheme>://<host>/api/v2) from any URL on a survey host.
func SurveyBaseURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host + "/api/v2"
}

// SurveyFormID extracts {uid} from .../assets/{uid}/data/, or "" when absent.
func SurveyFormID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "assets" && i+1 < len(parts) {
			return strings.TrimSuffix(parts[i+1], ".json")
		}
	}
	return ""
}

var (
	errInvalidScheme = errors.New("URL scheme must be http or https")
	errMissingHost   = errors.New("URL has no host")
)

// ValidateURL checks that rawURL is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errInvalidScheme
	}
	if u.Host == "" {
		return errMissingHost
	}
	return nil
}
