package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	ServerPort string

	RedisURL string

	JWTSecret string

	// ChallengeTTL is the enrollment nonce lifetime in seconds.
	ChallengeTTL int

	// ChallengeBackend selects the nonce store: "memory" (single instance)
	// or "redis" (multi-instance deployments).
	ChallengeBackend string

	// CertSigningSeed is the base64 Ed25519 seed for the device certificate
	// issuer. Empty disables certificate issuance.
	CertSigningSeed string
	CertKeyID       string

	// Sealed-attachment store (S3-compatible, e.g. Cloudflare R2).
	// All blobs are client-side ciphertext; the server only presigns URLs.
	BlobAccountID       string
	BlobAccessKeyID     string
	BlobSecretAccessKey string
	BlobBucketName      string
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	challengeTTL, err := strconv.Atoi(os.Getenv("CHALLENGE_TTL_SECONDS"))
	if err != nil || challengeTTL <= 0 {
		challengeTTL = 300
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	challengeBackend := os.Getenv("CHALLENGE_BACKEND")
	if challengeBackend == "" {
		challengeBackend = "memory"
	}

	certKeyID := os.Getenv("CERT_KEY_ID")
	if certKeyID == "" {
		certKeyID = "ed25519:root-2025"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		ServerPort: serverPort,

		RedisURL: os.Getenv("REDIS_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		ChallengeTTL:     challengeTTL,
		ChallengeBackend: challengeBackend,

		CertSigningSeed: os.Getenv("CERT_SIGNING_SEED"),
		CertKeyID:       certKeyID,

		BlobAccountID:       os.Getenv("BLOB_ACCOUNT_ID"),
		BlobAccessKeyID:     os.Getenv("BLOB_ACCESS_KEY_ID"),
		BlobSecretAccessKey: os.Getenv("BLOB_SECRET_ACCESS_KEY"),
		BlobBucketName:      os.Getenv("BLOB_BUCKET_NAME"),
	}, nil
}
