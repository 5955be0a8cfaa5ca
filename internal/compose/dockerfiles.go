package compose

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/previewd/orchestrator/internal/framework"
)

// dockerfileVars are the per-deployment values spec.md names for Dockerfile
// rendering: in-container app port, the app's entrypoint, and the declared
// database (carried through for frameworks whose base image wants to know
// it, and for documentation in the rendered file).
type dockerfileVars struct {
	AppPort       int
	AppEntrypoint string
	DBType        string
}

var dockerfileTemplates = map[framework.Framework]string{
	framework.NestJS:  nestjsDockerfileTemplate,
	framework.Go:      goDockerfileTemplate,
	framework.Laravel: laravelDockerfileTemplate,
	framework.Rust:    rustDockerfileTemplate,
	framework.Python:  pythonDockerfileTemplate,
}

func renderDockerfile(fw framework.Framework, vars dockerfileVars) (string, error) {
	tmplText, ok := dockerfileTemplates[fw]
	if !ok {
		return "", fmt.Errorf("compose: no Dockerfile template for framework %q", fw)
	}

	tmpl, err := template.New("dockerfile").Parse(tmplText)
	if err != nil {
		return "", fmt.Errorf("compose: parsing Dockerfile template for %q: %w", fw, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("compose: rendering Dockerfile template for %q: %w", fw, err)
	}
	return buf.String(), nil
}

const nestjsDockerfileTemplate = `# database: {{.DBType}}
FROM node:20-alpine AS builder
WORKDIR /app
COPY package.json package-lock.json* ./
RUN npm ci
COPY . .
RUN npm run build

FROM node:20-alpine
WORKDIR /app
ENV NODE_ENV=production
COPY --from=builder /app/node_modules ./node_modules
COPY --from=builder /app/dist ./dist
COPY --from=builder /app/package.json ./

EXPOSE {{.AppPort}}
CMD ["node", "{{.AppEntrypoint}}"]
`

const goDockerfileTemplate = `# database: {{.DBType}}
FROM golang:1.22-alpine AS builder
WORKDIR /app
RUN apk add --no-cache git ca-certificates
COPY go.mod go.sum* ./
RUN go mod download
COPY . .
RUN CGO_ENABLED=0 GOOS=linux go build -ldflags="-w -s" -o /app/server {{.AppEntrypoint}}

FROM alpine:latest
WORKDIR /app
RUN apk --no-cache add ca-certificates
COPY --from=builder /app/server ./server

EXPOSE {{.AppPort}}
CMD ["./server"]
`

const laravelDockerfileTemplate = `# database: {{.DBType}}
FROM php:8.3-cli-alpine
WORKDIR /app
RUN apk add --no-cache git unzip libpq
COPY --from=composer:latest /usr/bin/composer /usr/bin/composer
COPY composer.json composer.lock ./
RUN composer install --no-dev --no-scripts --no-autoloader --prefer-dist
COPY . .
RUN composer dump-autoload --optimize

EXPOSE {{.AppPort}}
CMD ["php", "artisan", "serve", "--host=0.0.0.0", "--port={{.AppPort}}"]
`

const rustDockerfileTemplate = `# database: {{.DBType}}
FROM rust:1.75-slim AS builder
WORKDIR /app
COPY Cargo.toml Cargo.lock* ./
RUN mkdir src && echo "fn main() {}" > src/main.rs && cargo build --release && rm -rf src
COPY . .
RUN touch src/main.rs && cargo build --release

FROM debian:bookworm-slim
WORKDIR /app
RUN apt-get update && apt-get install -y --no-install-recommends ca-certificates \
    && rm -rf /var/lib/apt/lists/*
COPY --from=builder /app/target/release/{{.AppEntrypoint}} ./server

EXPOSE {{.AppPort}}
CMD ["./server"]
`

const pythonDockerfileTemplate = `# database: {{.DBType}}
FROM python:3.12-slim
WORKDIR /app
RUN apt-get update && apt-get install -y --no-install-recommends build-essential \
    && rm -rf /var/lib/apt/lists/*
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt
COPY . .

EXPOSE {{.AppPort}}
CMD ["uvicorn", "{{.AppEntrypoint}}", "--host", "0.0.0.0", "--port", "{{.AppPort}}"]
`
