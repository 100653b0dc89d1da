/*
Package raster holds the image array model shared by the stack and its storage adapters.

Arrays are stored losslessly with their exact dtype and shape (see Encode), and are only
reduced to 8-bit RGB when rendered for display (see EncodePNG and Thumbnail).
*/
package raster
