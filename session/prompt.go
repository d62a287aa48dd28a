package session

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `You are the OmniStream Voice Interface, a highly advanced cyber-tool command system.
You can control the physical states of the device using tools.
Always confirm actions concisely.
Modules available: %s.
If the user asks to switch or scan, use the appropriate tool.`

// BuildSystemInstruction returns the live session instruction naming the
// available modules.
func BuildSystemInstruction(modules []string) string {
	return fmt.Sprintf(systemPromptTemplate, strings.Join(modules, ", "))
}
