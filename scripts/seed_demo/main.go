// Command seed_demo populates a running API instance with a small demo
// catalog, seeds the candidate slot grid for one week and triggers a planner
// run, so a fresh deployment has something to look at.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		base      string
		token     string
		weekStart string
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&token, "token", "", "Bearer token with ADMIN role")
	flag.StringVar(&weekStart, "week-start", "", "Week start date (a Monday, YYYY-MM-DD)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if token == "" {
		log.Fatal("a -token with ADMIN role is required")
	}
	if weekStart == "" {
		log.Fatal("-week-start is required and must be a Monday")
	}
	if _, err := time.Parse("2006-01-02", weekStart); err != nil {
		log.Fatalf("invalid -week-start: %v", err)
	}

	c := &client{base: strings.TrimRight(base, "/"), token: token, http: &http.Client{Timeout: timeout}}

	trainerID := c.create("/trainers", map[string]any{
		"email":     "marie.dubois@example.com",
		"fullName":  "Marie Dubois",
		"specialty": "Backend development",
	})
	roomID := c.create("/rooms", map[string]any{
		"name":     "Room A",
		"capacity": 20,
	})
	c.create("/equipment", map[string]any{
		"name":     "Projector",
		"quantity": 2,
	})
	groupID := c.create("/groups", map[string]any{
		"name": "Cohort 2026-A",
		"size": 14,
	})

	c.call(http.MethodPut, "/trainers/"+trainerID+"/availability", map[string]any{
		"windows": []map[string]any{
			{"weekday": "MONDAY", "startTime": "08:00", "endTime": "17:00", "available": true},
			{"weekday": "TUESDAY", "startTime": "08:00", "endTime": "17:00", "available": true},
			{"weekday": "WEDNESDAY", "startTime": "08:00", "endTime": "12:00", "available": true},
		},
	})

	c.call(http.MethodPost, "/planner/seed-slots", map[string]any{"weekStart": weekStart})

	c.call(http.MethodPost, "/sessions", map[string]any{
		"planId":    c.planID(weekStart),
		"title":     "Go fundamentals",
		"trainerId": trainerID,
		"roomId":    roomID,
		"groupId":   groupID,
		"slots": []map[string]any{
			{"date": weekStart, "weekday": "MONDAY", "startTime": "10:00", "endTime": "12:00"},
		},
	})

	result := c.call(http.MethodPost, "/planner/generate", map[string]any{"weekStart": weekStart})
	fmt.Printf("planner run: %s\n", string(result))
	fmt.Println("demo data seeded")
}

// planID runs an empty generation to materialise the week's plan and returns
// its id.
func (c *client) planID(weekStart string) string {
	raw := c.call(http.MethodPost, "/planner/generate", map[string]any{"weekStart": weekStart})
	var resp struct {
		PlanID string `json:"planId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.PlanID == "" {
		log.Fatalf("could not read plan id from planner response: %s", string(raw))
	}
	return resp.PlanID
}

func (c *client) create(path string, payload map[string]any) string {
	raw := c.call(http.MethodPost, path, payload)
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ID == "" {
		log.Fatalf("POST %s returned no id: %s", path, string(raw))
	}
	fmt.Printf("created %s -> %s\n", path, resp.ID)
	return resp.ID
}

func (c *client) call(method, path string, payload map[string]any) json.RawMessage {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("marshal payload for %s: %v", path, err)
	}
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request for %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response of %s: %v", path, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Fatalf("%s %s returned a non-envelope body: %s", method, path, string(raw))
	}
	if env.Error != nil {
		log.Fatalf("%s %s failed: %s (%s)", method, path, env.Error.Message, env.Error.Code)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		log.Fatalf("%s %s returned HTTP %d: %s", method, path, resp.StatusCode, string(raw))
	}
	return env.Data
}
