package presence

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/eskrenkovic/challenge-board/internal/modules/tests"
)

var fixture *tests.PostgresFixture

func TestMain(m *testing.M) {
	ctx := context.Background()

	fixture = tests.StartPostgres(ctx)

	code := m.Run()

	if err := fixture.Stop(ctx); err != nil {
		log.Println(err)
	}

	os.Exit(code)
}
