package form

import (
	"strconv"

	"github.com/samber/lo"

	"schedweb/internal/model"
	"schedweb/internal/store"
)

// CollectionsFrom builds the select sources from a store snapshot.
func CollectionsFrom(snap store.Snapshot) Collections {
	return Collections{
		SourceClients: lo.Map(snap.Clients, func(c model.Client, _ int) Option {
			return Option{Value: strconv.FormatInt(c.ID, 10), Name: c.Name}
		}),
		SourceUsers: lo.Map(snap.Users, func(u model.User, _ int) Option {
			return Option{Value: strconv.FormatInt(u.ID, 10), Name: u.Name}
		}),
		SourceServices: lo.Map(snap.Services, func(s model.Service, _ int) Option {
			return Option{Value: strconv.FormatInt(s.ID, 10), Name: s.Name}
		}),
	}
}
