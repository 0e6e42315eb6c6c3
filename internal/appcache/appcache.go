// Package appcache cachea la lectura de apps (solo lectura para el core).
// Las credenciales no pasan por acá: rotación y desactivación deben verse al instante.
package appcache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/phonepass/internal/cache"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/observability/logger"
)

const keyPrefix = "app:"

// AppGetter es la parte del repositorio que se cachea.
type AppGetter interface {
	GetApp(ctx context.Context, id string) (*repository.App, error)
}

// Resolver resuelve apps por ID con cache + singleflight.
type Resolver struct {
	repo  AppGetter
	cache cache.Client
	ttl   time.Duration
	sf    singleflight.Group
}

// New crea un Resolver. ttl<=0 usa el default del cliente de cache.
func New(repo AppGetter, c cache.Client, ttl time.Duration) *Resolver {
	return &Resolver{repo: repo, cache: c, ttl: ttl}
}

// GetApp devuelve la app, leyendo del cache si está disponible.
// Un error del cache nunca impide resolver desde el store.
func (r *Resolver) GetApp(ctx context.Context, id string) (*repository.App, error) {
	log := logger.From(ctx).With(logger.Component("appcache"), logger.AppID(id))

	if b, err := r.cache.Get(ctx, keyPrefix+id); err == nil {
		var app repository.App
		if err := json.Unmarshal(b, &app); err == nil {
			return &app, nil
		}
		log.Warn("entrada de cache corrupta, se descarta")
		_ = r.cache.Delete(ctx, keyPrefix+id)
	} else if !cache.IsNotFound(err) {
		log.Warn("cache no disponible", logger.Err(err))
	}

	v, err, _ := r.sf.Do(id, func() (any, error) {
		app, err := r.repo.GetApp(ctx, id)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(app); err == nil {
			if err := r.cache.Set(ctx, keyPrefix+id, b, r.ttl); err != nil {
				log.Warn("no se pudo cachear app", logger.Err(err))
			}
		}
		return app, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *v.(*repository.App)
	return &cp, nil
}

// Invalidate descarta la entrada de una app.
func (r *Resolver) Invalidate(ctx context.Context, id string) error {
	return r.cache.Delete(ctx, keyPrefix+id)
}
