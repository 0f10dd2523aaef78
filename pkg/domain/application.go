package domain

import "context"

// Application is a tenant application registered with the system server
type Application struct {
	AppID         string            `json:"appid" bson:"appid" yaml:"appid"`
	Name          string            `json:"name" bson:"name" yaml:"name"`
	CreatedBy     string            `json:"created_by" bson:"created_by" yaml:"created_by"`
	Status        string            `json:"status" bson:"status" yaml:"status"`
	Config        ApplicationConfig `json:"config" bson:"config" yaml:"config"`
	Collaborators []Collaborator    `json:"collaborators" bson:"collaborators" yaml:"collaborators"`
}

// ApplicationConfig holds the database settings of an application
type ApplicationConfig struct {
	DBName     string `json:"db_name" bson:"db_name" yaml:"db_name"`
	DBUser     string `json:"db_user,omitempty" bson:"db_user" yaml:"db_user"`
	DBPassword string `json:"-" bson:"db_password" yaml:"db_password"`
}

// Collaborator grants roles on an application to a user other than its creator
type Collaborator struct {
	UID   string   `json:"uid" bson:"uid" yaml:"uid"`
	Roles []string `json:"roles" bson:"roles" yaml:"roles"`
}

// Collaborator returns the collaborator entry for uid, if any
func (a *Application) Collaborator(uid string) (Collaborator, bool) {
	for _, c := range a.Collaborators {
		if c.UID == uid {
			return c, true
		}
	}
	return Collaborator{}, false
}

// DatabaseName returns the name of the application's database, falling back to the appid
func (a *Application) DatabaseName() string {
	if a.Config.DBName != "" {
		return a.Config.DBName
	}
	return a.AppID
}

// ApplicationRegistry resolves applications by appid.
// A nil application with a nil error means no application matched.
type ApplicationRegistry interface {
	GetApplicationByAppid(ctx context.Context, appid string) (*Application, error)
}

// DbAccessorProvider hands out the database accessor owned by an application
type DbAccessorProvider interface {
	GetApplicationDbAccessor(ctx context.Context, app *Application) (DbAccessor, error)
}

// DbAccessor is a handle on one application database. Callers Release it once they
// have finished issuing commands; the accessor must not be used afterwards.
type DbAccessor interface {
	Collection(name string) CollectionAccessor
	Release()
}

// CollectionAccessor issues commands against one collection
type CollectionAccessor interface {
	CreateIndex(ctx context.Context, spec IndexSpec, opts IndexOptions) (interface{}, error)
}
