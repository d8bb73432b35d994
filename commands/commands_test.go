package commands

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestAll(t *testing.T) {
	cmds := All()
	names := map[string]*discordgo.ApplicationCommand{}
	for _, c := range cmds {
		if c.Description == "" {
			t.Errorf("command %q has no description", c.Name)
		}
		names[c.Name] = c
	}
	for _, n := range []string{Poke, Inspect, SignIn} {
		if names[n] == nil {
			t.Errorf("missing command %q", n)
		}
	}

	inspect := names[Inspect]
	if inspect == nil || len(inspect.Options) != 1 {
		t.Fatalf("inspect options = %+v", inspect)
	}
	opt := inspect.Options[0]
	if opt.Name != PublicOption || opt.Type != discordgo.ApplicationCommandOptionBoolean || opt.Required {
		t.Errorf("public option = %+v", opt)
	}
}
