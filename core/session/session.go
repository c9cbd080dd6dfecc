// Package session holds the per-conversation record loaded around each event,
// the stores that persist it and the keyed lock that serializes access to it.
package session

import (
	"strings"
	"time"

	"github.com/m3rciful/stickerbot/core/event"
)

// Profile mirrors the sender as last seen plus the user's own choices.
type Profile struct {
	UserID       int64     `json:"user_id,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	Username     string    `json:"username,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
	Locale       string    `json:"locale,omitempty"`
	SeenAt       time.Time `json:"seen_at,omitempty"`
}

// SceneState is the position of a session inside a multi-step flow.
type SceneState struct {
	SceneID   string         `json:"scene_id"`
	Step      string         `json:"step"`
	Data      map[string]any `json:"data,omitempty"`
	EnteredAt time.Time      `json:"entered_at,omitempty"`
	TouchedAt time.Time      `json:"touched_at,omitempty"`
}

// PackRef is the sticker pack currently selected by the user.
type PackRef struct {
	Name   string `json:"name,omitempty"`
	Title  string `json:"title,omitempty"`
	Type   string `json:"type,omitempty"`
	Public bool   `json:"public,omitempty"`
}

// Session is the mutable record checked out for one event at a time.
type Session struct {
	Profile Profile        `json:"profile"`
	Scene   *SceneState    `json:"scene,omitempty"`
	Pack    PackRef        `json:"pack"`
	Data    map[string]any `json:"data,omitempty"`
}

// New returns the default session for a key seen for the first time.
func New() *Session {
	return &Session{Data: make(map[string]any)}
}

// InScene reports whether a scene is active.
func (s *Session) InScene() bool {
	return s != nil && s.Scene != nil && s.Scene.SceneID != ""
}

// PublicPack reports whether the selected pack is shared with other users.
func (s *Session) PublicPack() bool {
	return s != nil && s.Pack.Name != "" && s.Pack.Public
}

// Locale returns the explicitly chosen locale, or the client language.
func (s *Session) Locale() string {
	if s == nil {
		return ""
	}
	if l := strings.TrimSpace(s.Profile.Locale); l != "" {
		return l
	}
	return s.Profile.LanguageCode
}

// Refresh copies the sender profile into the session.
func (s *Session) Refresh(u *event.User, now time.Time) {
	if s == nil || u == nil {
		return
	}
	s.Profile.UserID = u.ID
	s.Profile.FirstName = u.FirstName
	s.Profile.Username = u.Username
	if u.LanguageCode != "" {
		s.Profile.LanguageCode = u.LanguageCode
	}
	s.Profile.SeenAt = now
}
