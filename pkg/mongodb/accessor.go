package mongodb

import (
	"context"
	"net/url"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/singleflight"

	"github.com/foreverif/laf/pkg/domain"
)

// ClientFactory opens a client authenticated as the application's database user
type ClientFactory func(ctx context.Context, app *domain.Application) (*mongo.Client, error)

// AccessorProvider implements domain.DbAccessorProvider over a MongoDB cluster.
// Applications without a database user share one client; the others get their own
// authenticated client, kept in an LRU. An evicted client is disconnected once every
// accessor handed out on it has been released.
type AccessorProvider struct {
	shared     *mongo.Client
	connect    ClientFactory
	disconnect func(ctx context.Context, client *mongo.Client) error
	logger     logrus.FieldLogger

	connects singleflight.Group

	mu      sync.Mutex
	clients *lru.Cache[string, *cachedClient]
}

// cachedClient is guarded by AccessorProvider.mu
type cachedClient struct {
	key     string
	client  *mongo.Client
	refs    int
	evicted bool
}

// maxAcquireAttempts bounds retries when a fresh client is evicted before it is used
const maxAcquireAttempts = 3

// NewAccessorProvider creates a provider. connect may be nil when no application has
// its own credentials.
func NewAccessorProvider(shared *mongo.Client, connect ClientFactory, cacheSize int, logger logrus.FieldLogger) (*AccessorProvider, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	p := &AccessorProvider{shared: shared, connect: connect, disconnect: Disconnect, logger: logger}
	clients, err := lru.NewWithEvict[string, *cachedClient](cacheSize, p.onEvict)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create client cache", goerr.V("size", cacheSize))
	}
	p.clients = clients
	return p, nil
}

// CredentialFactory returns a ClientFactory that connects to uri as app.Config.DBUser,
// authenticating against the application database.
func CredentialFactory(uri string) ClientFactory {
	return func(ctx context.Context, app *domain.Application) (*mongo.Client, error) {
		cred := options.Credential{
			Username:   app.Config.DBUser,
			Password:   app.Config.DBPassword,
			AuthSource: app.DatabaseName(),
		}
		return Connect(ctx, uri, options.Client().SetAuth(cred))
	}
}

// onEvict runs inside Add and Purge, which are only called with p.mu held
func (p *AccessorProvider) onEvict(key string, entry *cachedClient) {
	entry.evicted = true
	if entry.refs == 0 {
		p.close(entry)
	}
}

func (p *AccessorProvider) close(entry *cachedClient) {
	go func() {
		if err := p.disconnect(context.Background(), entry.client); err != nil {
			p.logger.WithError(err).WithField("client", entry.key).Warn("failed to disconnect evicted client")
		}
	}()
}

func (p *AccessorProvider) release(entry *cachedClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry.refs--
	if entry.refs == 0 && entry.evicted {
		p.close(entry)
	}
}

func clientKey(app *domain.Application) string {
	return url.PathEscape(app.AppID) + "/" + url.PathEscape(app.Config.DBUser)
}

// GetApplicationDbAccessor implements domain.DbAccessorProvider
func (p *AccessorProvider) GetApplicationDbAccessor(ctx context.Context, app *domain.Application) (domain.DbAccessor, error) {
	if app == nil {
		return nil, goerr.New("application is nil")
	}
	if app.Config.DBUser == "" {
		if p.shared == nil {
			return nil, goerr.New("no shared client configured", goerr.V("appid", app.AppID))
		}
		return NewAccessor(p.shared.Database(app.DatabaseName())), nil
	}

	entry, err := p.acquire(ctx, app)
	if err != nil {
		return nil, err
	}
	accessor := NewAccessor(entry.client.Database(app.DatabaseName()))
	accessor.release = func() { p.release(entry) }
	return accessor, nil
}

// acquire returns the cached client of app with one more reference, connecting outside
// p.mu when it is missing. Concurrent callers for the same app share one connect.
func (p *AccessorProvider) acquire(ctx context.Context, app *domain.Application) (*cachedClient, error) {
	if p.connect == nil {
		return nil, goerr.New("no client factory configured", goerr.V("appid", app.AppID))
	}
	key := clientKey(app)

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		p.mu.Lock()
		if entry, ok := p.clients.Get(key); ok {
			entry.refs++
			p.mu.Unlock()
			return entry, nil
		}
		p.mu.Unlock()

		_, err, _ := p.connects.Do(key, func() (interface{}, error) {
			p.mu.Lock()
			cached := p.clients.Contains(key)
			p.mu.Unlock()
			if cached {
				return nil, nil
			}

			// Waiters share this connect; it outlives the leader's request
			client, err := p.connect(context.WithoutCancel(ctx), app)
			if err != nil {
				return nil, err
			}
			p.mu.Lock()
			p.clients.Add(key, &cachedClient{key: key, client: client})
			p.mu.Unlock()
			return nil, nil
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to connect application database",
				goerr.V("appid", app.AppID), goerr.T(domain.TagBackend))
		}
	}
	return nil, goerr.New("application client evicted before use",
		goerr.V("appid", app.AppID), goerr.T(domain.TagBackend))
}

// Len returns the number of cached per-application clients
func (p *AccessorProvider) Len() int {
	return p.clients.Len()
}

// Close evicts every cached client. Clients still held by an accessor are
// disconnected when it is released; the shared client belongs to the caller.
func (p *AccessorProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients.Purge()
}

// Accessor is a handle on one application database
type Accessor struct {
	db      *mongo.Database
	release func()
	once    sync.Once
}

// NewAccessor wraps db
func NewAccessor(db *mongo.Database) *Accessor {
	return &Accessor{db: db}
}

// Collection implements domain.DbAccessor
func (a *Accessor) Collection(name string) domain.CollectionAccessor {
	return &collectionAccessor{indexes: a.db.Collection(name).Indexes()}
}

// Release implements domain.DbAccessor. Only the first call has an effect.
func (a *Accessor) Release() {
	a.once.Do(func() {
		if a.release != nil {
			a.release()
		}
	})
}

type indexCreator interface {
	CreateOne(ctx context.Context, model mongo.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type collectionAccessor struct {
	indexes indexCreator
}

// CreateIndex creates the index and returns its name
func (c *collectionAccessor) CreateIndex(ctx context.Context, spec domain.IndexSpec, opts domain.IndexOptions) (interface{}, error) {
	name, err := c.indexes.CreateOne(ctx, IndexModel(spec, opts))
	if err != nil {
		return nil, err
	}
	return name, nil
}

// IndexModel converts a spec into the driver's index model. Keys keep spec order.
func IndexModel(spec domain.IndexSpec, opts domain.IndexOptions) mongo.IndexModel {
	keys := bson.D{}
	for _, k := range spec.Keys() {
		keys = append(keys, bson.E{Key: k.Field, Value: int32(k.Direction)})
	}
	return mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(opts.Unique).SetBackground(opts.Background),
	}
}
