package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ailurotech/ailurowander/libs/notifier"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type memTourStore struct {
	mu    sync.Mutex
	tours map[primitive.ObjectID]Tour
	order []primitive.ObjectID
}

func newMemTourStore() *memTourStore {
	return &memTourStore{tours: map[primitive.ObjectID]Tour{}}
}

func tourMatches(tour Tour, filter TourFilter) bool {
	if !filter.IncludeInactive && !tour.Active() {
		return false
	}
	if filter.Featured != nil && tour.Featured != *filter.Featured {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	if q == "" {
		return true
	}
	fields := append([]string{tour.Title, tour.Description, tour.Destination}, tour.Tags...)
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (s *memTourStore) List(ctx context.Context, filter TourFilter) (*PaginatedTours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	matched := []Tour{}
	for _, id := range s.order {
		if tour := s.tours[id]; tourMatches(tour, filter) {
			matched = append(matched, tour)
		}
	}
	start := min((page-1)*pageSize, len(matched))
	end := min(start+pageSize, len(matched))
	return &PaginatedTours{
		Tours:       matched[start:end],
		TotalCount:  len(matched),
		TotalPages:  totalPages(len(matched), pageSize),
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func (s *memTourStore) Get(ctx context.Context, id string) (*Tour, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tour, ok := s.tours[objectID]
	if !ok {
		return nil, nil
	}
	return &tour, nil
}

func (s *memTourStore) GetBySlug(ctx context.Context, slug string) (*Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slug = slugify(slug)
	for _, id := range s.order {
		tour := s.tours[id]
		if tour.Slug == slug || (tour.Slug == "" && slugify(tour.Title) == slug) {
			return &tour, nil
		}
	}
	return nil, nil
}

func (s *memTourStore) Related(ctx context.Context, tags []string, excludeID string, limit int) ([]Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Tour{}
	for _, id := range s.order {
		tour := s.tours[id]
		if id.Hex() == excludeID || !tour.Active() {
			continue
		}
		for _, tag := range tour.Tags {
			if containsString(tags, tag) {
				out = append(out, tour)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memTourStore) Destinations(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	out := []string{}
	for _, tour := range s.tours {
		if _, ok := seen[tour.Destination]; !ok && tour.Active() {
			seen[tour.Destination] = struct{}{}
			out = append(out, tour.Destination)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memTourStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tours), nil
}

func (s *memTourStore) Create(ctx context.Context, tour Tour) (*Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tour.ID.IsZero() {
		tour.ID = primitive.NewObjectID()
	}
	s.tours[tour.ID] = tour
	s.order = append(s.order, tour.ID)
	return &tour, nil
}

// SetFields round-trips through BSON so dotted keys behave like $set.
func (s *memTourStore) SetFields(ctx context.Context, id string, fields bson.M) (*Tour, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tour, ok := s.tours[objectID]
	if !ok {
		return nil, nil
	}
	raw, err := bson.Marshal(tour)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for key, value := range fields {
		if parent, child, dotted := strings.Cut(key, "."); dotted {
			nested := bson.M{}
			switch current := doc[parent].(type) {
			case bson.M:
				nested = current
			case bson.D:
				for _, elem := range current {
					nested[elem.Key] = elem.Value
				}
			}
			nested[child] = value
			doc[parent] = nested
			continue
		}
		doc[key] = value
	}
	raw, err = bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var updated Tour
	if err := bson.Unmarshal(raw, &updated); err != nil {
		return nil, err
	}
	s.tours[objectID] = updated
	return &updated, nil
}

func (s *memTourStore) Delete(ctx context.Context, id string) (bool, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tours[objectID]; !ok {
		return false, nil
	}
	delete(s.tours, objectID)
	for i, existing := range s.order {
		if existing == objectID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

type memAgentStore struct {
	mu     sync.Mutex
	agents map[primitive.ObjectID]Agent
}

func newMemAgentStore() *memAgentStore {
	return &memAgentStore{agents: map[primitive.ObjectID]Agent{}}
}

func (s *memAgentStore) List(ctx context.Context, filter AgentFilter) (*PaginatedAgents, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	out := []Agent{}
	for _, agent := range s.agents {
		if filter.Role != "" && agent.Role != filter.Role {
			continue
		}
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return &PaginatedAgents{
		Agents:      out,
		TotalCount:  len(out),
		TotalPages:  totalPages(len(out), pageSize),
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func (s *memAgentStore) GetByID(ctx context.Context, id string) (*Agent, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[objectID]
	if !ok {
		return nil, nil
	}
	return &agent, nil
}

func (s *memAgentStore) GetByUsername(ctx context.Context, username string) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, agent := range s.agents {
		if agent.Username == username {
			return &agent, nil
		}
	}
	return nil, nil
}

func (s *memAgentStore) Create(ctx context.Context, agent Agent) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.agents {
		if existing.Username == agent.Username {
			return nil, errDuplicateUsername
		}
	}
	if agent.ID.IsZero() {
		agent.ID = primitive.NewObjectID()
	}
	s.agents[agent.ID] = agent
	return &agent, nil
}

func (s *memAgentStore) Update(ctx context.Context, id string, fields bson.M) (*Agent, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[objectID]
	if !ok {
		return nil, nil
	}
	for key, value := range fields {
		switch key {
		case "username":
			agent.Username = value.(string)
		case "name":
			agent.Name = value.(string)
		case "email":
			agent.Email = value.(string)
		case "passwordHash":
			agent.PasswordHash = value.(string)
		case "role":
			agent.Role = value.(string)
		case "isActive":
			agent.IsActive = value.(bool)
		case "updatedAt":
			agent.UpdatedAt = value.(time.Time)
		}
	}
	s.agents[objectID] = agent
	return &agent, nil
}

func (s *memAgentStore) UpsertByUsername(ctx context.Context, agent Agent) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.agents {
		if existing.Username == agent.Username {
			agent.ID = id
			agent.CreatedAt = existing.CreatedAt
			s.agents[id] = agent
			return &agent, nil
		}
	}
	agent.ID = primitive.NewObjectID()
	s.agents[agent.ID] = agent
	return &agent, nil
}

func (s *memAgentStore) TouchLogin(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agent, ok := s.agents[id]; ok {
		agent.LastLogin = &at
		s.agents[id] = agent
	}
	return nil
}

func (s *memAgentStore) Delete(ctx context.Context, id string) (bool, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[objectID]; !ok {
		return false, nil
	}
	delete(s.agents, objectID)
	return true, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]Session{}}
}

func (s *memSessionStore) Create(ctx context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return nil
}

func (s *memSessionStore) FindValid(ctx context.Context, token string, now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok || !session.ExpiresAt.After(now) {
		return nil, nil
	}
	return &session, nil
}

func (s *memSessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *memSessionStore) DeleteByAgent(ctx context.Context, agentID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, session := range s.sessions {
		if session.AgentID == agentID {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *memSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

type memTranslationStore struct {
	mu      sync.Mutex
	entries []Translation
}

func (s *memTranslationStore) RecordUse(ctx context.Context, original string, at time.Time) (*Translation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Original == original {
			s.entries[i].UsageCount++
			s.entries[i].LastUsed = at
			entry := s.entries[i]
			return &entry, nil
		}
	}
	return nil, nil
}

func (s *memTranslationStore) Insert(ctx context.Context, translation Translation) (*Translation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if translation.ID.IsZero() {
		translation.ID = primitive.NewObjectID()
	}
	s.entries = append(s.entries, translation)
	return &translation, nil
}

func (s *memTranslationStore) History(ctx context.Context, limit int) ([]Translation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]Translation{}, s.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memTranslationStore) Search(ctx context.Context, query string, limit int) ([]Translation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	out := []Translation{}
	for _, entry := range s.entries {
		if strings.Contains(strings.ToLower(entry.Original), q) || strings.Contains(strings.ToLower(entry.Translations["en"]), q) {
			out = append(out, entry)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memTranslationStore) Delete(ctx context.Context, id string) (bool, error) {
	objectID, err := parseObjectID(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.entries {
		if entry.ID == objectID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    error
}

func (s *memObjectStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if s.fail != nil {
		return "", s.fail
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notifier.Message
	err      error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(ctx context.Context, msg notifier.Message) (notifier.SendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return notifier.SendResult{}, r.err
	}
	r.messages = append(r.messages, msg)
	return notifier.SendResult{ProviderMessageID: "rec-1"}, nil
}

type stubTranslator struct {
	calls int
	err   error
}

func (s *stubTranslator) Name() string { return "stub" }

func (s *stubTranslator) Translate(ctx context.Context, text string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "EN:" + text, nil
}

type stubGeocoder struct {
	result *GeocodeResult
	err    error
	calls  int
}

func (g *stubGeocoder) Geocode(ctx context.Context, name string) (*GeocodeResult, error) {
	g.calls++
	return g.result, g.err
}

type stubArchive struct {
	series *DailySeries
	err    error
	calls  int
}

func (a *stubArchive) Daily(ctx context.Context, lat, lon float64, startYear, endYear int) (*DailySeries, error) {
	a.calls++
	return a.series, a.err
}

type testDeps struct {
	tours        *memTourStore
	agents       *memAgentStore
	sessions     *memSessionStore
	translations *memTranslationStore
	objects      *memObjectStore
	notifier     *recordingNotifier
	translator   *stubTranslator
	geocoder     *stubGeocoder
	archive      *stubArchive
}

func newTestServer(t *testing.T) (*App, *gin.Engine, *testDeps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := &testDeps{
		tours:        newMemTourStore(),
		agents:       newMemAgentStore(),
		sessions:     newMemSessionStore(),
		translations: &memTranslationStore{},
		objects:      &memObjectStore{},
		notifier:     &recordingNotifier{},
		translator:   &stubTranslator{},
		geocoder:     &stubGeocoder{},
		archive:      &stubArchive{},
	}

	climate := newClimateService(deps.geocoder, deps.archive, logger)
	climate.now = func() time.Time { return testNow }

	app := &App{
		cfg: &Config{
			Env:            "test",
			PublicBaseURL:  "https://ailurowander.com",
			ContactEmailTo: "contact@example.com",
		},
		log:          logger,
		tours:        deps.tours,
		agents:       deps.agents,
		sessions:     deps.sessions,
		translations: deps.translations,
		objects:      deps.objects,
		climate:      climate,
		translator:   deps.translator,
		notifier:     notifier.New(deps.notifier, "noreply@example.com"),
		rateBuckets:  make(map[string]rateBucket),
		now:          func() time.Time { return testNow },
	}

	router := gin.New()
	app.registerRoutes(router)
	return app, router, deps
}

func seedAgent(t *testing.T, deps *testDeps, username, password, role string) Agent {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	created, err := deps.agents.Create(context.Background(), Agent{
		Username:     username,
		Name:         username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return *created
}

func seedSession(t *testing.T, deps *testDeps, agent Agent, expiresAt time.Time) string {
	t.Helper()
	token, err := generateSessionToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if err := deps.sessions.Create(context.Background(), Session{
		Token:     token,
		AgentID:   agent.ID,
		ExpiresAt: expiresAt,
		CreatedAt: testNow,
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token
}

func authenticatedRequest(t *testing.T, deps *testDeps, agent Agent, method, target string, body io.Reader) *http.Request {
	t.Helper()
	token := seedSession(t, deps, agent, testNow.Add(time.Hour))
	req := httptest.NewRequest(method, target, body)
	req.AddCookie(&http.Cookie{Name: agentCookieName, Value: token, Path: "/"})
	return req
}

func jsonBody(raw string) io.Reader {
	return bytes.NewBufferString(raw)
}

func seedTour(t *testing.T, deps *testDeps, tour Tour) Tour {
	t.Helper()
	if tour.Slug == "" {
		tour.Slug = slugify(tour.Title)
	}
	if tour.Images.Gallery == nil {
		tour.Images.Gallery = []string{}
	}
	tour.CreatedAt = testNow
	tour.UpdatedAt = testNow
	created, err := deps.tours.Create(context.Background(), tour)
	if err != nil {
		t.Fatalf("create tour: %v", err)
	}
	return *created
}
