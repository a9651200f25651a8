package handler

import (
	"context"

	"github.com/hitoshi/moovies/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn  func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockTokenVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*model.Identity, error)
}

func (m *mockTokenVerifier) Verify(ctx context.Context, idToken string) (*model.Identity, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, idToken)
	}
	return nil, nil
}

type mockMovieService struct {
	lookupFn       func(ctx context.Context, query string) (*model.MovieDetails, error)
	randomMoviesFn func(ctx context.Context) ([]model.RandomMovie, error)
}

func (m *mockMovieService) Lookup(ctx context.Context, query string) (*model.MovieDetails, error) {
	if m.lookupFn != nil {
		return m.lookupFn(ctx, query)
	}
	return nil, nil
}

func (m *mockMovieService) RandomMovies(ctx context.Context) ([]model.RandomMovie, error) {
	if m.randomMoviesFn != nil {
		return m.randomMoviesFn(ctx)
	}
	return nil, nil
}

type mockRecommendService struct {
	recommendFn func(ctx context.Context, description string) ([]string, error)
}

func (m *mockRecommendService) Recommend(ctx context.Context, description string) ([]string, error) {
	if m.recommendFn != nil {
		return m.recommendFn(ctx, description)
	}
	return nil, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}
