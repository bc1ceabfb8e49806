package backend

import (
	_ "github.com/ollama/okkernel/ml/backend/sim"
)
