// Kb CI
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/kb/internal/dagger"
)

// Kb is the main module for the kb CI pipeline
type Kb struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Kb CI module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".kb", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Kb {
	return &Kb{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc,
// libsqlite3-dev, CGO enabled, and the project source mounted.
// The sqlite snapshot provider needs CGO.
func (k *Kb) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", k.Source)
}

// Test runs the kb unit tests via "go test"
//
// +check
func (k *Kb) Test(ctx context.Context) (string, error) {
	return k.goContainer().
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

// TestPostgres runs the snapshot tests against a throwaway PostgreSQL service.
func (k *Kb) TestPostgres(ctx context.Context) (string, error) {
	postgres := dag.Container().
		From("postgres:17-alpine").
		WithEnvVariable("POSTGRES_USER", "kb").
		WithEnvVariable("POSTGRES_PASSWORD", "kb").
		WithEnvVariable("POSTGRES_DB", "kb").
		WithExposedPort(5432).
		AsService()

	return k.goContainer().
		WithServiceBinding("postgres", postgres).
		WithEnvVariable("KB_TEST_POSTGRES_DSN", "postgres://kb:kb@postgres:5432/kb?sslmode=disable").
		WithExec([]string{"go", "test", "-v", "./pkg/store/snapshot/..."}).
		Stdout(ctx)
}
