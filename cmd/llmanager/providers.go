package main

// Notifier blank imports. Each import registers a provider with the
// notifier registry.

import (
	_ "github.com/Strob0t/LLManager/internal/adapter/discord"
	_ "github.com/Strob0t/LLManager/internal/adapter/slack"
)
