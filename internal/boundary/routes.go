package boundary

// registerRoutes mounts the /api group behind tokenAuth, the event-hub
// websocket upgrade on the same listener, and static file serving with
// SPA fallback for everything else (spec §4.I).
func (b *Boundary) registerRoutes() {
	api := b.echo.Group("/api", tokenAuth(b.deps.Token))

	api.GET("/health", b.handleHealth)

	api.GET("/config", b.handleGetConfig)
	api.PATCH("/config", b.handlePatchConfig)

	api.GET("/providers", b.handleListProviders)
	api.GET("/providers/:id", b.handleGetProvider)
	api.PUT("/providers/:id", b.handlePutProvider)
	api.DELETE("/providers/:id", b.handleDeleteProvider)
	api.POST("/providers/:id/test", b.handleTestProvider)

	api.GET("/chat/history", b.handleChatHistory)
	api.DELETE("/chat/:id", b.handleDeleteChat)
	api.DELETE("/chat/archived/all", b.handleDeleteAllArchivedChats)

	api.GET("/rag/documents", b.handleRagListDocuments)
	api.POST("/rag/upload", b.handleRagUpload)
	api.DELETE("/rag/documents/:id", b.handleRagDeleteDocument)
	api.GET("/rag/documents/:id/chunks", b.handleRagDocumentChunks)
	api.POST("/rag/documents/:id/reindex", b.handleRagReindex)
	api.GET("/rag/folders", b.handleRagListFolders)
	api.DELETE("/rag/folders/:folder", b.handleRagDeleteFolder)
	api.POST("/rag/search", b.handleRagSearch)
	api.POST("/rag/memory", b.handleRagAddMemory)

	api.POST("/consult", b.handleConsult)

	b.registerWebsocket()
	b.registerStatic()
}
