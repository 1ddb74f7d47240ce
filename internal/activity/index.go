package activity

import (
	"fmt"
	"os"
	"time"

	"authflow/internal/models"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const schemaVersion = "1"

var schemaVersionKey = []byte("schema_version")

// indexEntry is the document shape indexed in bleve.
type indexEntry struct {
	Action    string    `json:"action"`
	Email     string    `json:"email"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// IndexClient implements IActivityLogger on a bleve index.
type IndexClient struct {
	index bleve.Index
	now   func() time.Time
}

// NewIndexClient opens the index in dir, creating it when missing. An empty dir keeps
// the index in memory. An index written with another schema version is rebuilt empty.
func NewIndexClient(dir string) (*IndexClient, error) {
	if dir == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create activity index: %w", err)
		}
		return &IndexClient{index: index, now: time.Now}, nil
	}

	index, err := bleve.Open(dir)
	if err != nil {
		return create(dir)
	}

	storedVersion, err := index.GetInternal(schemaVersionKey)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}
	if string(storedVersion) != schemaVersion {
		zap.L().Warn("Activity index schema mismatch, recreating",
			zap.String("old_version", string(storedVersion)),
			zap.String("new_version", schemaVersion),
		)
		if err = index.Close(); err != nil {
			return nil, fmt.Errorf("failed to close old index: %w", err)
		}
		if err = os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove old index: %w", err)
		}
		return create(dir)
	}

	return &IndexClient{index: index, now: time.Now}, nil
}

func create(dir string) (*IndexClient, error) {
	index, err := bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create activity index: %w", err)
	}
	if err = index.SetInternal(schemaVersionKey, []byte(schemaVersion)); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to set schema version: %w", err)
	}
	return &IndexClient{index: index, now: time.Now}, nil
}

func buildIndexMapping() *mapping.IndexMappingImpl {
	keywordMapping := bleve.NewKeywordFieldMapping()
	dateMapping := bleve.NewDateTimeFieldMapping()
	textMapping := bleve.NewTextFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("action", keywordMapping)
	docMapping.AddFieldMappingsAt("email", keywordMapping)
	docMapping.AddFieldMappingsAt("user_id", keywordMapping)
	docMapping.AddFieldMappingsAt("timestamp", dateMapping)
	docMapping.AddFieldMappingsAt("message", textMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

func (c *IndexClient) Send(activity models.Activity) error {
	if activity.Timestamp.IsZero() {
		activity.Timestamp = c.now()
	}

	entry := indexEntry{
		Action:    string(activity.Action),
		Email:     activity.Email,
		UserID:    activity.UserID,
		Message:   activity.Message,
		Timestamp: activity.Timestamp.UTC(),
	}

	if err := c.index.Index(uuid.NewString(), entry); err != nil {
		return fmt.Errorf("failed to index activity: %w", err)
	}
	return nil
}

func (c *IndexClient) Search(criteria models.ActivityCriteria, limit int) ([]models.Activity, error) {
	now := c.now()
	since := criteria.Since
	if since.IsZero() {
		since = now.AddDate(0, 0, -30)
	}
	dateQuery := bleve.NewDateRangeQuery(since, now.Add(time.Second))
	dateQuery.SetField("timestamp")

	searchRequest := bleve.NewSearchRequest(bleve.NewConjunctionQuery(buildQuery(criteria), dateQuery))
	searchRequest.Size = limit
	searchRequest.SortBy([]string{"-timestamp"})
	searchRequest.Fields = []string{"*"}

	result, err := c.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search activity: %w", err)
	}

	activities := make([]models.Activity, 0, len(result.Hits))
	for _, hit := range result.Hits {
		action, _ := hit.Fields["action"].(string)
		email, _ := hit.Fields["email"].(string)
		userID, _ := hit.Fields["user_id"].(string)
		message, _ := hit.Fields["message"].(string)

		activity := models.Activity{
			Action:  models.ActivityAction(action),
			Email:   email,
			UserID:  userID,
			Message: message,
		}
		if s, ok := hit.Fields["timestamp"].(string); ok {
			if t, parseErr := time.Parse(time.RFC3339, s); parseErr == nil {
				activity.Timestamp = t
			}
		}
		activities = append(activities, activity)
	}

	return activities, nil
}

func buildQuery(criteria models.ActivityCriteria) query.Query {
	var queries []query.Query

	if criteria.Email != "" {
		termQuery := bleve.NewTermQuery(criteria.Email)
		termQuery.SetField("email")
		queries = append(queries, termQuery)
	}

	if len(criteria.Actions) > 0 {
		var termQueries []query.Query
		for _, action := range criteria.Actions {
			tq := bleve.NewTermQuery(string(action))
			tq.SetField("action")
			termQueries = append(termQueries, tq)
		}
		disjunction := bleve.NewDisjunctionQuery(termQueries...)
		disjunction.SetMin(1)
		queries = append(queries, disjunction)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

func (c *IndexClient) Close() error {
	return c.index.Close()
}
