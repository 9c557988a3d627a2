package config

type StorageConfig struct {
	BasePath string `env:"STORAGE_BASE_PATH" envDefault:"/data/uploaded_documents"`
	// OCRFallback runs tesseract over rendered pages when a PDF has no text layer.
	OCRFallback bool `env:"OCR_FALLBACK" envDefault:"false"`
}
