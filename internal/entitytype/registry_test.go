package entitytype_test

import (
	"testing"

	"github.com/kapetan-io/entityqueue/internal/entitytype"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		r := entitytype.NewDefaultRegistry()

		d, err := r.Definition("taxonomy_term")
		require.NoError(t, err)
		assert.Equal(t, "taxonomy", d.Provider)

		d, err = r.Definition("node")
		require.NoError(t, err)
		assert.Equal(t, "node", d.Provider)
		assert.Len(t, r.Definitions(), len(entitytype.Defaults))
	})

	t.Run("NotExist", func(t *testing.T) {
		r := entitytype.NewRegistry()

		_, err := r.Definition("node")
		require.Error(t, err)
		assert.ErrorIs(t, err, entitytype.ErrEntityTypeNotExist)

		var failed *transport.ErrRequestFailed
		assert.ErrorAs(t, err, &failed)
	})

	t.Run("Register", func(t *testing.T) {
		r := entitytype.NewRegistry()
		require.NoError(t, r.Register(entitytype.Definition{ID: "product", Label: "Product", Provider: "commerce"}))
		require.NoError(t, r.Register(entitytype.Definition{ID: "article", Provider: "content"}))

		defs := r.Definitions()
		require.Len(t, defs, 2)
		assert.Equal(t, "article", defs[0].ID)
		assert.Equal(t, "product", defs[1].ID)

		err := r.Register(entitytype.Definition{ID: "", Provider: "commerce"})
		assert.EqualError(t, err, "entity type id is invalid; cannot be empty")

		err = r.Register(entitytype.Definition{ID: "order"})
		assert.EqualError(t, err, "entity type 'order' is invalid; provider cannot be empty")
	})

	t.Run("Unregister", func(t *testing.T) {
		r := entitytype.NewRegistry(
			entitytype.Definition{ID: "product", Provider: "commerce"},
			entitytype.Definition{ID: "order", Provider: "commerce"},
			entitytype.Definition{ID: "node", Provider: "node"},
		)

		assert.Equal(t, []string{"order", "product"}, r.Unregister("commerce"))
		assert.Nil(t, r.Unregister("commerce"))

		_, err := r.Definition("product")
		assert.ErrorIs(t, err, entitytype.ErrEntityTypeNotExist)
		_, err = r.Definition("node")
		assert.NoError(t, err)
	})
}
