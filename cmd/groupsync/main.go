// Command groupsync keeps the social platform's groups and the CRM's groups
// in step.
package main

import (
	"context"
	"log"

	"github.com/dalemusser/groupsync/internal/app/bootstrap"
	"github.com/dalemusser/waffle/app"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
